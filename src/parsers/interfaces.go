package parsers

import (
	"io"

	"github.com/username/cryptocgt/backend/src/models"
)

// Parser converts one exchange's CSV export into normalized transactions.
// Parsers do not assign tax years; that happens in the import service once
// the fiscal configuration is known.
type Parser interface {
	Parse(file io.Reader) ([]models.Transaction, error)
}
