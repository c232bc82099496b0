package index

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
	"github.com/Aman-CERP/amanctx/internal/store"
)

// WorkType says which collection a work item targets.
type WorkType string

const (
	WorkCode     WorkType = "code_file"
	WorkDocument WorkType = "document"
)

// WorkItem is one unit of indexing work, as carried by the queue and
// accepted by IndexBatch.
type WorkItem struct {
	ID       string           `json:"id" validate:"required"`
	Type     WorkType         `json:"type" validate:"required,oneof=code_file document"`
	Code     *store.CodeChunk `json:"code,omitempty" validate:"required_if=Type code_file"`
	Document *store.Document  `json:"document,omitempty" validate:"required_if=Type document"`
}

// NewCodeItem wraps c in a work item with a fresh ID.
func NewCodeItem(c *store.CodeChunk) WorkItem {
	return WorkItem{ID: uuid.NewString(), Type: WorkCode, Code: c}
}

// NewDocumentItem wraps d in a work item with a fresh ID.
func NewDocumentItem(d *store.Document) WorkItem {
	return WorkItem{ID: uuid.NewString(), Type: WorkDocument, Document: d}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the item shape and the payload's required fields.
func (w WorkItem) Validate() error {
	if err := getValidator().Struct(w); err != nil {
		return invalidItem(w.ID, err)
	}
	return nil
}

func invalidItem(id string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return amerrors.New(amerrors.ErrCodeInvalidWorkItem, "invalid work item", err).WithDetail("id", id)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return amerrors.New(amerrors.ErrCodeInvalidWorkItem,
		"invalid work item: "+strings.Join(fields, ", "), err).WithDetail("id", id)
}
