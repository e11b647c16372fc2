// Package validation checks user input before anything touches storage.
//
// Every check is pure apart from the injected clock used for the upper bound
// of the year. A failed check returns *Error naming every offending field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"barbeintiaden/photo-archive/internal/domain"

	"github.com/go-playground/validator/v10"
)

// MaxPhotoSize is the largest accepted upload, 10 MiB.
const MaxPhotoSize = 10 * 1024 * 1024

// Error lists the fields that failed validation with a readable message each.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Error) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if prev, ok := e.Fields[field]; ok {
		e.Fields[field] = prev + "; " + msg
		return
	}
	e.Fields[field] = msg
}

func (e *Error) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// PhotoUploadRequest is the raw form of an upload as it arrives.
type PhotoUploadRequest struct {
	Title       string
	Description string
	Year        string
	FileName    string
	Size        int64
	ContentType string
}

// PhotoUpload is a validated upload.
type PhotoUpload struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Year        int     `json:"year" validate:"archiveyear"`
	FileName    string  `json:"-"`
	Size        int64   `json:"file" validate:"max=10485760"`
	ContentType string  `json:"file" validate:"startswith=image/"`
}

// CommentInput is a comment about to be posted.
type CommentInput struct {
	PhotoID string `json:"photoId" validate:"uuid"`
	Content string `json:"content" validate:"min=1,max=500"`
}

// ApprovalInput changes the approval flag of a user.
type ApprovalInput struct {
	UserID   string `json:"userId" validate:"uuid"`
	Approved *bool  `json:"approved" validate:"required"`
}

// Gate runs the input checks.
type Gate struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewGate creates a Gate. now supplies the current year; nil means time.Now.
func NewGate(now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	g := &Gate{validate: validator.New(), now: now}

	g.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = g.validate.RegisterValidation("archiveyear", func(fl validator.FieldLevel) bool {
		y := int(fl.Field().Int())
		return y >= domain.MinYear && y <= g.now().Year()
	})
	return g
}

// PhotoUpload validates an upload. Empty title and description are treated
// as absent.
func (g *Gate) PhotoUpload(req PhotoUploadRequest) (PhotoUpload, error) {
	out := PhotoUpload{
		Title:       optional(req.Title),
		Description: optional(req.Description),
		FileName:    req.FileName,
		Size:        req.Size,
		ContentType: req.ContentType,
	}

	verr := &Error{}
	year, err := strconv.Atoi(strings.TrimSpace(req.Year))
	if err != nil {
		verr.add("year", "year must be an integer")
		// Keep the range rule quiet; the parse message says enough.
		year = domain.MinYear
	}
	out.Year = year

	g.collect(verr, g.validate.Struct(out))
	if err := verr.orNil(); err != nil {
		return PhotoUpload{}, err
	}
	return out, nil
}

// Comment validates a comment.
func (g *Gate) Comment(in CommentInput) (CommentInput, error) {
	verr := &Error{}
	g.collect(verr, g.validate.Struct(in))
	if err := verr.orNil(); err != nil {
		return CommentInput{}, err
	}
	return in, nil
}

// Approval validates an approval change.
func (g *Gate) Approval(in ApprovalInput) (ApprovalInput, error) {
	verr := &Error{}
	g.collect(verr, g.validate.Struct(in))
	if err := verr.orNil(); err != nil {
		return ApprovalInput{}, err
	}
	return in, nil
}

func (g *Gate) collect(verr *Error, err error) {
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add("_", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		verr.add(fe.Field(), g.message(fe))
	}
}

func (g *Gate) message(fe validator.FieldError) string {
	switch fe.Field() + "." + fe.Tag() {
	case "title.min":
		return "title is required"
	case "title.max":
		return "title cannot be longer than 200 characters"
	case "description.max":
		return "description cannot be longer than 1000 characters"
	case "year.archiveyear":
		if fe.Value().(int) < domain.MinYear {
			return fmt.Sprintf("year must be %d or later", domain.MinYear)
		}
		return fmt.Sprintf("year cannot be later than %d", g.now().Year())
	case "file.max":
		return "file cannot be larger than 10MB"
	case "file.startswith":
		return "file must be an image"
	case "content.min":
		return "comment cannot be empty"
	case "content.max":
		return "comment cannot be longer than 500 characters"
	case "photoId.uuid":
		return "invalid photo id"
	case "userId.uuid":
		return "invalid user id"
	case "approved.required":
		return "approved must be true or false"
	}
	return fmt.Sprintf("failed on the '%s' rule", fe.Tag())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
