package login

import "errors"

// HomePath is where a completed login navigates to.
const HomePath = "/"

// ErrUnknownOutcome is returned by Route for a nil or foreign outcome.
var ErrUnknownOutcome = errors.New("unexpected response from the authentication service")

// Action is what the presentation layer should do after a login resolves:
// NavigateTo or ShowChallenge.
type Action interface {
	isAction()
}

// NavigateTo moves the user away from the login view.
type NavigateTo struct {
	Path string
}

// ShowChallenge hands the token to the second-factor step.
type ShowChallenge struct {
	Token string
}

func (NavigateTo) isAction()    {}
func (ShowChallenge) isAction() {}

// Route decides the next action from a gateway outcome. A challenge always
// wins; anything that is neither variant, or a challenge without a token, is
// rejected rather than treated as a session.
func Route(outcome Outcome) (Action, error) {
	switch o := outcome.(type) {
	case ChallengeOutcome:
		if o.Token == "" {
			return nil, ErrUnknownOutcome
		}
		return ShowChallenge{Token: o.Token}, nil
	case *ChallengeOutcome:
		if o == nil || o.Token == "" {
			return nil, ErrUnknownOutcome
		}
		return ShowChallenge{Token: o.Token}, nil
	case SessionOutcome:
		return NavigateTo{Path: HomePath}, nil
	case *SessionOutcome:
		if o == nil {
			return nil, ErrUnknownOutcome
		}
		return NavigateTo{Path: HomePath}, nil
	default:
		return nil, ErrUnknownOutcome
	}
}
