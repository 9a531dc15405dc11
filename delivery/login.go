package delivery

import (
	"context"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"login-handshake/delivery/model"
	"login-handshake/login"
)

func (h *HTTPEndpoint) createFlowHandler(w http.ResponseWriter, r *http.Request) {
	f := newLoginFlow(h.app.Gateway(), h.logger())
	h.flows.add(f)
	h.logger().Debug("login flow created", zap.String("flow_id", f.id))
	writeJSON(w, http.StatusCreated, flowView(f))
}

func (h *HTTPEndpoint) getFlowHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, flowView(f))
}

func (h *HTTPEndpoint) deleteFlowHandler(w http.ResponseWriter, r *http.Request) {
	if !h.flows.remove(chi.URLParam(r, "flowID")) {
		writeFlowNotFound(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPEndpoint) setFieldHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	field := login.Field(chi.URLParam(r, "field"))
	if !slices.Contains(login.Fields, field) {
		writeError(w, http.StatusBadRequest, "UNKNOWN_FIELD", "unknown field "+string(field), "REQUEST_ERROR")
		return
	}
	var req model.SetValueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f.login.SetField(field, req.Value)
	writeJSON(w, http.StatusOK, flowView(f))
}

// submitHandler blocks until the gateway resolves. The attempt is detached
// from the request so a disconnecting client cannot abort it halfway.
func (h *HTTPEndpoint) submitHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !f.login.Snapshot().State.Submittable() {
		writeNotSubmittable(w)
		return
	}
	if !f.login.Submit(context.WithoutCancel(r.Context())) {
		if !f.login.Snapshot().Errors.Valid() {
			writeJSON(w, http.StatusUnprocessableEntity, flowView(f))
			return
		}
		writeNotSubmittable(w)
		return
	}
	writeJSON(w, http.StatusOK, flowView(f))
}

func (h *HTTPEndpoint) dismissErrorHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	f.login.DismissError()
	writeJSON(w, http.StatusOK, flowView(f))
}

func (h *HTTPEndpoint) setCodeHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupChallenge(w, r)
	if !ok {
		return
	}
	var req model.SetValueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f.mfa.SetCode(req.Value)
	writeJSON(w, http.StatusOK, flowView(f))
}

func (h *HTTPEndpoint) submitCodeHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupChallenge(w, r)
	if !ok {
		return
	}
	if !f.mfa.Snapshot().State.Submittable() {
		writeNotSubmittable(w)
		return
	}
	if !f.mfa.Submit(context.WithoutCancel(r.Context())) {
		if snap := f.mfa.Snapshot(); snap.CodeError != "" {
			writeJSON(w, http.StatusUnprocessableEntity, flowView(f))
			return
		}
		writeNotSubmittable(w)
		return
	}
	writeJSON(w, http.StatusOK, flowView(f))
}

func (h *HTTPEndpoint) dismissCodeErrorHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupChallenge(w, r)
	if !ok {
		return
	}
	f.mfa.DismissError()
	writeJSON(w, http.StatusOK, flowView(f))
}

func (h *HTTPEndpoint) lookup(w http.ResponseWriter, r *http.Request) (*loginFlow, bool) {
	f, ok := h.flows.get(chi.URLParam(r, "flowID"))
	if !ok {
		writeFlowNotFound(w)
	}
	return f, ok
}

// lookupChallenge is lookup for the second-factor routes, which only exist
// once a challenge was issued.
func (h *HTTPEndpoint) lookupChallenge(w http.ResponseWriter, r *http.Request) (*loginFlow, bool) {
	f, ok := h.lookup(w, r)
	if !ok {
		return nil, false
	}
	if !f.mfa.Snapshot().Active() {
		writeError(w, http.StatusConflict, "NO_CHALLENGE", "no second factor has been requested", "FLOW_ERROR")
		return nil, false
	}
	return f, true
}

func writeFlowNotFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "FLOW_NOT_FOUND", "login flow not found or expired", "FLOW_ERROR")
}

func writeNotSubmittable(w http.ResponseWriter) {
	writeError(w, http.StatusConflict, "NOT_SUBMITTABLE", "the flow cannot be submitted in its current state", "FLOW_ERROR")
}

func flowView(f *loginFlow) model.FlowResponse {
	snap := f.login.Snapshot()
	view := model.FlowResponse{
		FlowID:         f.id,
		Step:           model.StepPassword,
		State:          snap.State.String(),
		Values:         map[string]string{string(login.FieldEmail): snap.Values.Email},
		Errors:         map[string]string{},
		ErrorMessage:   snap.ErrorMessage,
		SubmitDisabled: snap.SubmitDisabled(),
		RedirectTo:     f.redirect(),
	}
	for _, field := range login.Fields {
		if msg := snap.FieldError(field); msg != "" {
			view.Errors[string(field)] = msg
		}
	}

	if ms := f.mfa.Snapshot(); ms.Active() {
		view.Step = model.StepMFA
		view.MFA = &model.MFAResponse{
			State:          ms.State.String(),
			CodeError:      ms.CodeError,
			ErrorMessage:   ms.ErrorMessage,
			SubmitDisabled: ms.SubmitDisabled(),
		}
	}
	if view.RedirectTo != "" {
		view.Step = model.StepDone
	}
	return view
}
