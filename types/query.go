package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

type IngestParams struct {
	UserID     string `json:"user_id" validate:"required,uuid4"`
	SourceURL  string `json:"source_url" validate:"required,url"`
	DocumentID string `json:"document_id" validate:"omitempty,uuid4"`
}

type ChatParams struct {
	UserID  string             `json:"user_id" validate:"required,uuid4"`
	Message string             `json:"message" validate:"required"`
	History []ConversationTurn `json:"history" validate:"omitempty,dive"`
}

type FlashcardParams struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
	Count  int    `json:"count" validate:"required,min=1,max=50"`
}

type EvaluateParams struct {
	UserID   string `json:"user_id" validate:"required,uuid4"`
	Response string `json:"response" validate:"required"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

var validate = validator.New()

func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func (params *IngestParams) Validate() map[string]string    { return validateStruct(params) }
func (params *ChatParams) Validate() map[string]string      { return validateStruct(params) }
func (params *FlashcardParams) Validate() map[string]string { return validateStruct(params) }
func (params *EvaluateParams) Validate() map[string]string  { return validateStruct(params) }
