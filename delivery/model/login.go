package model

// Flow steps.
const (
	StepPassword = "password"
	StepMFA      = "mfa"
	StepDone     = "done"
)

type SetValueRequest struct {
	Value string `json:"value"`
}

type (
	// FlowResponse is the view of one login flow. The password is never
	// echoed back.
	FlowResponse struct {
		FlowID         string            `json:"flowId"`
		Step           string            `json:"step"`
		State          string            `json:"state"`
		Values         map[string]string `json:"values"`
		Errors         map[string]string `json:"errors"`
		ErrorMessage   string            `json:"errorMessage,omitempty"`
		SubmitDisabled bool              `json:"submitDisabled"`
		MFA            *MFAResponse      `json:"mfa,omitempty"`
		RedirectTo     string            `json:"redirectTo,omitempty"`
	}

	MFAResponse struct {
		State          string `json:"state"`
		CodeError      string `json:"codeError,omitempty"`
		ErrorMessage   string `json:"errorMessage,omitempty"`
		SubmitDisabled bool   `json:"submitDisabled"`
	}
)

type (
	ErrorResponse struct {
		Error ErrorDetail `json:"error"`
	}

	ErrorDetail struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		ErrorType string         `json:"type"`
		Attribute map[string]any `json:"attribute,omitempty"`
	}
)
