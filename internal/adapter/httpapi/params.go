package httpapi

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"devsolver/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate returns one message per failed field, or nil.
func Validate(params any) map[string]string {
	if err := validate.Struct(params); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

type SearchParams struct {
	Query      string `json:"query" validate:"required"`
	Technology string `json:"technology" validate:"required"`
	TopK       int    `json:"top_k" validate:"gte=0,lte=50"`
	Source     string `json:"source" validate:"omitempty,oneof=official community"`
}

type AskParams struct {
	Query       string `json:"query" validate:"required"`
	Technology  string `json:"technology" validate:"required"`
	CodeContext string `json:"code_context"`
	Preference  string `json:"preference" validate:"omitempty,oneof=official community both"`
	TopK        int    `json:"top_k" validate:"gte=0,lte=50"`
}

func (p AskParams) Question() domain.Question {
	return domain.Question{
		Query:       p.Query,
		Technology:  p.Technology,
		CodeContext: p.CodeContext,
		Preference:  domain.Preference(p.Preference),
		TopK:        p.TopK,
	}
}

// DocumentParams adds one document, either fetched from URL or given inline.
type DocumentParams struct {
	Technology string `json:"technology" validate:"required"`
	Label      string `json:"label" validate:"required,oneof=official community"`
	URL        string `json:"url" validate:"required_without=Content,omitempty,url"`
	Title      string `json:"title"`
	Content    string `json:"content" validate:"required_without=URL"`
}

type SearchResponse struct {
	Query      string                `json:"query"`
	Technology string                `json:"technology"`
	Results    []domain.ScoredResult `json:"results"`
	Timestamp  time.Time             `json:"timestamp"`
}
