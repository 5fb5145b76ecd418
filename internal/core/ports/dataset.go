package ports

import "github.com/atvirokodosprendimai/synthcheck/internal/core/domain"

// DatasetDecoder turns stored file content into rows. format is the file
// extension without the dot.
type DatasetDecoder interface {
	Decode(format string, content []byte) (domain.Dataset, error)
}
