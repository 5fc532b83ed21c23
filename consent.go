package grantway

import (
	"context"
	"fmt"
	"html"
	"net/http"

	"github.com/grantway/grantway/storage"
)

// consentKind is the tag of the three-way consent outcome.
type consentKind int

const (
	consentAuthorized consentKind = iota
	consentDenied
	consentInProgress
)

// Consent is the outcome of soliciting the resource owner. It is a tagged
// value: Authorized carries the owner's identifier, Denied carries nothing,
// and InProgress carries a renderer for the partial response (typically a
// consent page) the flow returns without completing. InProgress is a
// cooperative suspension, not an error: the flow is resumed by a later,
// independent request whose resumption state travels in the request itself.
type Consent struct {
	kind    consentKind
	ownerID string
	render  func(WebResponse) error
}

// Authorized marks the request approved by the given owner.
func Authorized(ownerID string) Consent {
	return Consent{kind: consentAuthorized, ownerID: ownerID}
}

// Denied marks the request refused by the owner.
func Denied() Consent {
	return Consent{kind: consentDenied}
}

// InProgress suspends the flow, answering the request with the partial
// response produced by render.
func InProgress(render func(WebResponse) error) Consent {
	return Consent{kind: consentInProgress, render: render}
}

// ConsentSolicitor obtains the owner's decision for a negotiated
// authorization request. Implementations typically render a consent page on
// the first request (InProgress) and read the submitted decision on the
// next.
type ConsentSolicitor interface {
	Solicit(ctx context.Context, req WebRequest, pre *storage.PreGrant) (Consent, error)
}

// SolicitorFunc adapts a function to the ConsentSolicitor interface.
type SolicitorFunc func(ctx context.Context, req WebRequest, pre *storage.PreGrant) (Consent, error)

// Solicit implements ConsentSolicitor.
func (f SolicitorFunc) Solicit(ctx context.Context, req WebRequest, pre *storage.PreGrant) (Consent, error) {
	return f(ctx, req, pre)
}

// StaticConsent authorizes every request as a fixed owner. It stands in for
// a real consent UI in tests and single-owner deployments where the host
// authenticates the owner out of band.
type StaticConsent struct {
	OwnerID string
}

// Solicit implements ConsentSolicitor.
func (s StaticConsent) Solicit(context.Context, WebRequest, *storage.PreGrant) (Consent, error) {
	return Authorized(s.OwnerID), nil
}

// Form parameter names used by FormConsent. The host's owner-authentication
// layer fills consent_owner; the page fills consent_decision.
const (
	consentDecisionParam = "consent_decision"
	consentOwnerParam    = "consent_owner"

	consentApprove = "approve"
	consentDeny    = "deny"
)

// FormConsent drives consent through an HTML form. A request without a
// decision suspends the flow and renders the consent page; the page posts
// back to the authorization endpoint with the original query parameters plus
// the decision, and that second request completes the flow.
//
// FormConsent trusts the consent_owner field. It is only safe behind a host
// layer that authenticates the owner and injects the field itself.
type FormConsent struct {
	// Render replaces the default consent page. It receives the negotiated
	// request so the page can show the client and scope being approved.
	Render func(resp WebResponse, req WebRequest, pre *storage.PreGrant) error
}

// Solicit implements ConsentSolicitor.
func (f FormConsent) Solicit(_ context.Context, req WebRequest, pre *storage.PreGrant) (Consent, error) {
	decision, ok := req.Form(consentDecisionParam)
	if !ok {
		render := f.Render
		if render == nil {
			render = defaultConsentPage
		}
		return InProgress(func(resp WebResponse) error {
			return render(resp, req, pre)
		}), nil
	}

	if decision != consentApprove {
		return Denied(), nil
	}

	owner, ok := req.Form(consentOwnerParam)
	if !ok || owner == "" {
		return Denied(), nil
	}
	return Authorized(owner), nil
}

// defaultConsentPage renders a minimal approval form that posts the original
// request parameters back to the authorization endpoint.
func defaultConsentPage(resp WebResponse, req WebRequest, pre *storage.PreGrant) error {
	state, _ := req.Query(paramState)
	owner, _ := req.Form(consentOwnerParam)

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Authorize %[1]s</title></head>
<body>
<p>Client <strong>%[1]s</strong> requests access with scope <code>%[2]s</code>.</p>
<form method="post">
<input type="hidden" name="response_type" value="code">
<input type="hidden" name="client_id" value="%[1]s">
<input type="hidden" name="redirect_uri" value="%[3]s">
<input type="hidden" name="scope" value="%[2]s">
<input type="hidden" name="state" value="%[4]s">
<input type="hidden" name="consent_owner" value="%[5]s">
<button name="consent_decision" value="approve">Approve</button>
<button name="consent_decision" value="deny">Deny</button>
</form>
</body>
</html>`,
		html.EscapeString(pre.ClientID),
		html.EscapeString(pre.Scope.String()),
		html.EscapeString(pre.RedirectURI),
		html.EscapeString(state),
		html.EscapeString(owner),
	)

	resp.SetStatus(http.StatusOK)
	resp.SetHeader("Content-Type", "text/html; charset=utf-8")
	return resp.WriteHTML(page)
}
