package dto

// LoginRequest payload, accepted as JSON or form fields.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// CompleteRequest carries the text fields of the completion form.
type CompleteRequest struct {
	CompletionNote string `json:"completion_note" form:"completion_note"`
}

// RedirectResponse tells script clients where to navigate.
type RedirectResponse struct {
	Redirect string `json:"redirect"`
}
