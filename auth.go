package linkedinmessaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wirebird/linkedin-messaging/internal/httpkit"
)

// Challenge holds the hidden form state scraped from an intermediate
// verification page. It exists only between Login returning
// ErrChallengeRequired and the next Enter2FA call; both success and
// failure discard it.
type Challenge struct {
	CSRFToken           string
	PageInstance        string
	ResendURL           string
	ChallengeID         string
	DisplayTime         string
	ChallengeSource     string
	RequestSubmissionID string
	ChallengeType       string
	ChallengeData       string
	ChallengeDetails    string
	FailureRedirectURI  string
	FlowTreeID          string
}

// challengeFromInputs captures a challenge from a page's hidden inputs.
func challengeFromInputs(inputs map[string]string) *Challenge {
	return &Challenge{
		CSRFToken:           inputs["csrfToken"],
		PageInstance:        inputs["pageInstance"],
		ResendURL:           inputs["resendUrl"],
		ChallengeID:         inputs["challengeId"],
		DisplayTime:         inputs["displayTime"],
		ChallengeSource:     inputs["challengeSource"],
		RequestSubmissionID: inputs["requestSubmissionId"],
		ChallengeType:       inputs["challengeType"],
		ChallengeData:       inputs["challengeData"],
		ChallengeDetails:    inputs["challengeDetails"],
		FailureRedirectURI:  inputs["failureRedirectUri"],
		FlowTreeID:          inputs["flowTreeId"],
	}
}

// form renders the challenge back into the verification form, with the
// user's one-time code as the pin.
func (ch *Challenge) form(code string) url.Values {
	return url.Values{
		"csrfToken":           {ch.CSRFToken},
		"pageInstance":        {ch.PageInstance},
		"resendUrl":           {ch.ResendURL},
		"challengeId":         {ch.ChallengeID},
		"displayTime":         {ch.DisplayTime},
		"challengeSource":     {ch.ChallengeSource},
		"requestSubmissionId": {ch.RequestSubmissionID},
		"challengeType":       {ch.ChallengeType},
		"challengeData":       {ch.ChallengeData},
		"challengeDetails":    {ch.ChallengeDetails},
		"failureRedirectUri":  {ch.FailureRedirectURI},
		"flowTreeId":          {ch.FlowTreeID},
		"language":            {"en-US"},
		"recognizedDevice":    {"on"},
		"pin":                 {code},
	}
}

// hiddenInputs parses an HTML page and returns the name→value map of
// every <input> element. Login pages carry their state (CSRF seeds,
// challenge parameters) exclusively in hidden inputs.
func hiddenInputs(r io.Reader) (map[string]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse login page: %w", err)
	}
	inputs := make(map[string]string)
	collectInputs(doc, inputs)
	return inputs, nil
}

func collectInputs(n *html.Node, out map[string]string) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Input {
		var name, value string
		for _, a := range n.Attr {
			switch a.Key {
			case "name":
				name = a.Val
			case "value":
				value = a.Val
			}
		}
		if name != "" {
			out[name] = value
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectInputs(c, out)
	}
}

// Login drives the credential leg of the login handshake:
//
//  1. discard any prior session state and fetch the seed page,
//  2. scrape the loginCsrfParam hidden input,
//  3. submit the credential form,
//  4. decide the outcome from the resulting cookie set.
//
// On success the session carries the full auth cookie set and the CSRF
// header is derived; subsequent API calls need nothing further. When
// the service raises a verification step instead, Login captures the
// challenge and returns ErrChallengeRequired — call Enter2FA next. A
// response with neither auth cookies nor a challenge marker is
// ErrAuthenticationFailed.
func (c *Client) Login(ctx context.Context, email, password string) error {
	c.resetSession()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+seedPath, nil)
	if err != nil {
		return fmt.Errorf("build seed request: %w", err)
	}
	c.applyHeaders(req)
	seedResp, err := c.api.Do(req)
	if err != nil {
		return fmt.Errorf("fetch csrf seed page: %w", err)
	}
	if seedResp.StatusCode != http.StatusOK {
		return &ProtocolError{
			StatusCode: seedResp.StatusCode,
			Body:       httpkit.ReadErrorBody(seedResp.Body, 512),
		}
	}
	inputs, err := hiddenInputs(seedResp.Body)
	seedResp.Body.Close()
	if err != nil {
		return err
	}
	loginCsrfParam, ok := inputs["loginCsrfParam"]
	if !ok {
		return &ProtocolError{
			StatusCode: seedResp.StatusCode,
			Err:        fmt.Errorf("seed page has no loginCsrfParam input"),
		}
	}

	loginResp, err := c.postForm(ctx, c.baseURL+loginPath, url.Values{
		"loginCsrfParam":   {loginCsrfParam},
		"session_key":      {email},
		"session_password": {password},
	})
	if err != nil {
		return err
	}
	defer loginResp.Body.Close()

	// Success is signalled by the cookie set, not the status: the jar
	// has already recorded whatever the submit response set.
	if c.session.HasAuthCookies() {
		return nil
	}

	inputs, err = hiddenInputs(loginResp.Body)
	if err != nil {
		return err
	}
	if _, ok := inputs["challengeId"]; ok {
		c.challenge = challengeFromInputs(inputs)
		return ErrChallengeRequired
	}
	return ErrAuthenticationFailed
}

// Enter2FA resolves a pending verification challenge with the one-time
// code the user received. Valid only directly after Login returned
// ErrChallengeRequired; the stored challenge is consumed whether or not
// verification succeeds, so a failed attempt restarts from Login.
func (c *Client) Enter2FA(ctx context.Context, code string) error {
	if c.challenge == nil {
		return ErrNoChallenge
	}
	ch := c.challenge
	c.challenge = nil

	resp, err := c.postForm(ctx, c.baseURL+verifyPath, ch.form(code))
	if err != nil {
		return err
	}
	httpkit.DrainAndClose(resp.Body, 4096)

	if c.session.HasAuthCookies() {
		return nil
	}
	return ErrAuthenticationFailed
}

// LoggedIn reports whether the session is usable. Without the required
// auth cookies it answers false with no network traffic; otherwise it
// probes the own-profile endpoint. Probe failures of any kind are
// logged and reported as false, never propagated.
func (c *Client) LoggedIn(ctx context.Context) bool {
	if !c.session.HasAuthCookies() {
		return false
	}
	if _, err := c.GetUserProfile(ctx); err != nil {
		c.logger.Warn("logged-in probe failed", "error", err)
		return false
	}
	return true
}

// Logout ends the remote session. It is best-effort: with no CSRF token
// the session is already as good as logged out and Logout reports
// success trivially. The service confirms an actual logout with a 303
// redirect; any other status, or a transport failure, reports false.
func (c *Client) Logout(ctx context.Context) bool {
	tok := c.session.CSRFToken()
	if tok == "" {
		return true
	}

	u := c.baseURL + logoutPath + "?" + url.Values{"csrfToken": {tok}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false
	}
	c.applyHeaders(req)
	resp, err := c.noRedirect.Do(req)
	if err != nil {
		c.logger.Warn("logout request failed", "error", err)
		return false
	}
	httpkit.DrainAndClose(resp.Body, 4096)
	return resp.StatusCode == http.StatusSeeOther
}
