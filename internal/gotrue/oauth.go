package gotrue

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/imyashkale/mcphub/internal/logger"
)

// Handoff gets the user through the provider's consent page and returns
// the authorization code it redirects back with.
type Handoff interface {
	// RedirectURL is where the service sends the browser after consent
	RedirectURL() string
	Await(ctx context.Context, authorizeURL string) (code string, err error)
}

// SignInWithOAuth runs the PKCE flow for provider and stores the session
func (c *Client) SignInWithOAuth(ctx context.Context, provider, scopes string) error {
	if c.handoff == nil {
		return ErrNoHandoff
	}

	verifier, err := newCodeVerifier()
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", c.handoff.RedirectURL())
	q.Set("code_challenge", codeChallenge(verifier))
	q.Set("code_challenge_method", "s256")
	if scopes != "" {
		q.Set("scopes", scopes)
	}
	authorizeURL := c.baseURL + "/authorize?" + q.Encode()

	logger.WithField("provider", provider).Info("Starting OAuth sign-in")
	code, err := c.handoff.Await(ctx, authorizeURL)
	if err != nil {
		return err
	}

	var tok tokenResponse
	body := map[string]string{"auth_code": code, "code_verifier": verifier}
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=pkce", "", body, &tok); err != nil {
		return err
	}
	return c.saveSession(&tok)
}

func newCodeVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// LoopbackHandoff prints the authorize URL and receives the redirect on a
// local listener.
type LoopbackHandoff struct {
	listener net.Listener
	out      io.Writer
}

// NewLoopbackHandoff listens on addr, for example "127.0.0.1:0"
func NewLoopbackHandoff(addr string, out io.Writer) (*LoopbackHandoff, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for oauth callback: %w", err)
	}
	return &LoopbackHandoff{listener: l, out: out}, nil
}

func (h *LoopbackHandoff) RedirectURL() string {
	return "http://" + h.listener.Addr().String() + "/callback"
}

// Await serves a single callback and closes the listener
func (h *LoopbackHandoff) Await(ctx context.Context, authorizeURL string) (string, error) {
	fmt.Fprintf(h.out, "Open this URL in your browser to continue:\n\n  %s\n\n", authorizeURL)

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if msg := q.Get("error_description"); msg != "" || q.Get("error") != "" {
			if msg == "" {
				msg = q.Get("error")
			}
			http.Error(w, "Sign-in failed: "+msg, http.StatusBadRequest)
			select {
			case done <- result{err: errors.New(msg)}:
			default:
			}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Signed in. You can close this window.")
		select {
		case done <- result{code: code}:
		default:
		}
	})

	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(h.listener) }()
	defer srv.Close()

	select {
	case r := <-done:
		return r.code, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
