package linkedinmessaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const seedPage = `<html><body><form>
<input type="hidden" name="loginCsrfParam" value="csrf-seed-value">
</form></body></html>`

const challengePage = `<html><body><form>
<input type="hidden" name="csrfToken" value="ct">
<input type="hidden" name="pageInstance" value="pi">
<input type="hidden" name="resendUrl" value="ru">
<input type="hidden" name="challengeId" value="chal-1">
<input type="hidden" name="displayTime" value="dt">
<input type="hidden" name="challengeSource" value="cs">
<input type="hidden" name="requestSubmissionId" value="rsi">
<input type="hidden" name="challengeType" value="ctype">
<input type="hidden" name="challengeData" value="cdata">
<input type="hidden" name="challengeDetails" value="cdetails">
<input type="hidden" name="failureRedirectUri" value="fru">
<input type="hidden" name="flowTreeId" value="fti">
</form></body></html>`

// setAuthCookies writes the full required cookie set on a response.
func setAuthCookies(w http.ResponseWriter) {
	w.Header().Add("Set-Cookie", `li_at=auth-token; Path=/`)
	w.Header().Add("Set-Cookie", `JSESSIONID="ajax:999"; Path=/`)
}

func TestLogin_SeedPageMissingInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>nothing here</body></html>`)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	err := client.Login(context.Background(), "user@example.com", "hunter2")

	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("login = %v, want ProtocolError", err)
	}
	if client.Session().HasAuthCookies() {
		t.Error("failed login must not leave auth cookies behind")
	}
}

func TestLogin_SeedPageBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	err := client.Login(context.Background(), "user@example.com", "hunter2")

	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("login = %v, want ProtocolError", err)
	}
	if protoErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", protoErr.StatusCode)
	}
}

func TestLogin_Success(t *testing.T) {
	var submittedCsrf, submittedKey string
	var meCsrfHeader atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("/uas/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, seedPage)
	})
	mux.HandleFunc("/checkpoint/lg/login-submit", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		submittedCsrf = r.PostForm.Get("loginCsrfParam")
		submittedKey = r.PostForm.Get("session_key")
		setAuthCookies(w)
	})
	mux.HandleFunc("/voyager/api/me", func(w http.ResponseWriter, r *http.Request) {
		meCsrfHeader.Store(r.Header.Get("Csrf-Token"))
		fmt.Fprint(w, `{"plainId":"42","miniProfile":{"entityUrn":"urn:li:fs_miniProfile:me","publicIdentifier":"me"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	if err := client.Login(context.Background(), "user@example.com", "hunter2"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if submittedCsrf != "csrf-seed-value" {
		t.Errorf("submitted loginCsrfParam = %q", submittedCsrf)
	}
	if submittedKey != "user@example.com" {
		t.Errorf("submitted session_key = %q", submittedKey)
	}
	if got := client.Session().CSRFToken(); got != "ajax:999" {
		t.Errorf("CSRF token = %q, want ajax:999", got)
	}

	// An API call after login must carry the derived CSRF header.
	if _, err := client.GetUserProfile(context.Background()); err != nil {
		t.Fatalf("GetUserProfile: %v", err)
	}
	if got := meCsrfHeader.Load(); got != "ajax:999" {
		t.Errorf("Csrf-Token header on API call = %v, want ajax:999", got)
	}
}

func TestLogin_ChallengeRequired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/uas/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, seedPage)
	})
	mux.HandleFunc("/checkpoint/lg/login-submit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, challengePage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	err := client.Login(context.Background(), "user@example.com", "hunter2")
	if !errors.Is(err, ErrChallengeRequired) {
		t.Fatalf("login = %v, want ErrChallengeRequired", err)
	}

	ch := client.challenge
	if ch == nil {
		t.Fatal("challenge state not captured")
	}
	want := Challenge{
		CSRFToken: "ct", PageInstance: "pi", ResendURL: "ru",
		ChallengeID: "chal-1", DisplayTime: "dt", ChallengeSource: "cs",
		RequestSubmissionID: "rsi", ChallengeType: "ctype",
		ChallengeData: "cdata", ChallengeDetails: "cdetails",
		FailureRedirectURI: "fru", FlowTreeID: "fti",
	}
	if *ch != want {
		t.Errorf("challenge = %+v, want %+v", *ch, want)
	}
}

func TestLogin_AuthenticationFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/uas/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, seedPage)
	})
	mux.HandleFunc("/checkpoint/lg/login-submit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>wrong password</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	err := client.Login(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("login = %v, want ErrAuthenticationFailed", err)
	}
}

func TestEnter2FA(t *testing.T) {
	var verifyForm map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/uas/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, seedPage)
	})
	mux.HandleFunc("/checkpoint/lg/login-submit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, challengePage)
	})
	mux.HandleFunc("/checkpoint/challenge/verify", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		verifyForm = map[string]string{}
		for k := range r.PostForm {
			verifyForm[k] = r.PostForm.Get(k)
		}
		setAuthCookies(w)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	if err := client.Login(context.Background(), "user@example.com", "pw"); !errors.Is(err, ErrChallengeRequired) {
		t.Fatalf("login = %v, want ErrChallengeRequired", err)
	}

	if err := client.Enter2FA(context.Background(), "123456"); err != nil {
		t.Fatalf("enter 2fa: %v", err)
	}

	if verifyForm["pin"] != "123456" {
		t.Errorf("pin = %q", verifyForm["pin"])
	}
	if verifyForm["challengeId"] != "chal-1" {
		t.Errorf("challengeId = %q", verifyForm["challengeId"])
	}
	if verifyForm["language"] != "en-US" || verifyForm["recognizedDevice"] != "on" {
		t.Errorf("fixed fields missing: language=%q recognizedDevice=%q",
			verifyForm["language"], verifyForm["recognizedDevice"])
	}
	if client.challenge != nil {
		t.Error("challenge state should be discarded after success")
	}
	if got := client.Session().CSRFToken(); got != "ajax:999" {
		t.Errorf("CSRF token = %q, want ajax:999", got)
	}
}

func TestEnter2FA_NoChallengePending(t *testing.T) {
	client := NewClient()
	if err := client.Enter2FA(context.Background(), "123456"); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("enter 2fa = %v, want ErrNoChallenge", err)
	}
}

func TestEnter2FA_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/uas/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, seedPage)
	})
	mux.HandleFunc("/checkpoint/lg/login-submit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, challengePage)
	})
	mux.HandleFunc("/checkpoint/challenge/verify", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>bad code</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	if err := client.Login(context.Background(), "user@example.com", "pw"); !errors.Is(err, ErrChallengeRequired) {
		t.Fatalf("login = %v, want ErrChallengeRequired", err)
	}

	if err := client.Enter2FA(context.Background(), "000000"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("enter 2fa = %v, want ErrAuthenticationFailed", err)
	}
	if client.challenge != nil {
		t.Error("challenge state should be discarded after failure too")
	}
}

func TestLoggedIn_NoCookiesNoNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	if client.LoggedIn(context.Background()) {
		t.Error("LoggedIn without cookies should be false")
	}
	if hits.Load() != 0 {
		t.Errorf("LoggedIn without cookies made %d requests, want 0", hits.Load())
	}
}

// restoredClient builds a client whose session blob carries the auth
// cookie set, as if restored from a previous process.
func restoredClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	s := NewSession()
	s.SetCookies(mustParseURL(t, baseURL), []*http.Cookie{
		{Name: "li_at", Value: "auth-token"},
		{Name: "JSESSIONID", Value: `"ajax:999"`},
	})
	blob, err := s.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	client, err := RestoreClient(blob, WithBaseURL(baseURL))
	if err != nil {
		t.Fatalf("restore client: %v", err)
	}
	return client
}

func TestLoggedIn_RestoredSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/voyager/api/me", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"plainId":"42","miniProfile":{"entityUrn":"urn:li:fs_miniProfile:me","publicIdentifier":"me"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := restoredClient(t, srv.URL)
	if !client.LoggedIn(context.Background()) {
		t.Error("LoggedIn with valid restored session should be true")
	}
}

func TestLoggedIn_ProbeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := restoredClient(t, srv.URL)
	if client.LoggedIn(context.Background()) {
		t.Error("LoggedIn should be false when the probe fails")
	}
}

func TestLogout(t *testing.T) {
	t.Run("no csrf token is trivially logged out", func(t *testing.T) {
		client := NewClient()
		if !client.Logout(context.Background()) {
			t.Error("logout without CSRF token should succeed trivially")
		}
	})

	t.Run("303 confirms logout", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/uas/logout", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("csrfToken") != "ajax:999" {
				t.Errorf("csrfToken param = %q", r.URL.Query().Get("csrfToken"))
			}
			w.Header().Set("Location", "/")
			w.WriteHeader(http.StatusSeeOther)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		client := restoredClient(t, srv.URL)
		if !client.Logout(context.Background()) {
			t.Error("logout should report success on 303")
		}
	})

	t.Run("other status is failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := restoredClient(t, srv.URL)
		if client.Logout(context.Background()) {
			t.Error("logout should report failure on non-303")
		}
	})
}
