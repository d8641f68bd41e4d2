package httpapi

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"chatd/internal/common/fsutil"
	"chatd/internal/inference"
	"chatd/internal/session"
)

//go:embed web
var webFS embed.FS

// SessionCookie binds a browser to a chat session.
const SessionCookie = "chatd_session"

// Page holds the presentation strings of the chat page. None of them affect
// generation.
type Page struct {
	Title          string
	LogoURL        string
	Credits        string
	AccountStatus  string
	SupportContact string
	BotAvatar      string
	UserAvatar     string
	// StaticDir, when set, serves /static/ from disk instead of the
	// embedded assets.
	StaticDir string
}

type pageRenderer struct {
	cfg    Page
	tmpl   *template.Template
	static http.Handler
}

type pageMessage struct {
	Human bool
	Text  string
}

type pageData struct {
	Page
	Messages []pageMessage
	Error    string
}

func newPageRenderer(p Page) *pageRenderer {
	if p.BotAvatar == "" {
		p.BotAvatar = "/static/chatbot.svg"
	}
	if p.UserAvatar == "" {
		p.UserAvatar = "/static/profile.svg"
	}
	static, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic(err)
	}
	if p.StaticDir != "" {
		if dir, err := fsutil.Dir(p.StaticDir); err == nil {
			static = os.DirFS(dir)
		} else {
			zlog.Warn().Err(err).Str("static_dir", p.StaticDir).Msg("static dir unusable, serving embedded assets")
		}
	}
	return &pageRenderer{
		cfg:    p,
		tmpl:   template.Must(template.ParseFS(webFS, "web/index.html.tmpl")),
		static: http.FileServer(http.FS(static)),
	}
}

func (pr *pageRenderer) render(w http.ResponseWriter, status int, history []session.Message, errMsg string) {
	data := pageData{Page: pr.cfg, Error: errMsg, Messages: make([]pageMessage, len(history))}
	for i, m := range history {
		data.Messages[i] = pageMessage{Human: m.Origin == session.Human, Text: m.Text}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := pr.tmpl.Execute(w, data); err != nil {
		zlog.Error().Err(err).Msg("render page")
	}
}

// browserSession returns the session named by the cookie, creating a new one
// (and setting the cookie) when it is missing or expired.
func (s *server) browserSession(w http.ResponseWriter, r *http.Request) *session.Session {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if sess, err := s.store.Get(c.Value); err == nil {
			return sess
		}
	}
	sess := s.store.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.browserSession(w, r)
	s.page.render(w, http.StatusOK, sess.History(), "")
}

// handleChat runs one exchange from the page form and redirects back, which
// clears the input box. On failure the page is rendered with the error and
// the unchanged history.
func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	sess := s.browserSession(w, r)
	instruction := r.PostFormValue("instruction")
	if strings.TrimSpace(instruction) == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	xl := startExchange(r, sess.ID, instruction)
	ctx, cancel := exchangeContext(r.Context())
	defer cancel()
	reply, err := s.store.Submit(ctx, sess.ID, instruction)
	if err != nil {
		if r.Context().Err() != nil {
			xl.end(499, "", err)
			return
		}
		status := statusFor(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure(inference.TooBusyReason(err))
		}
		s.page.render(w, status, sess.History(), session.ErrGenerationFailed.Error())
		xl.end(status, "", err)
		return
	}
	xl.end(http.StatusSeeOther, reply.Text, nil)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess := s.browserSession(w, r)
	if err := s.store.Clear(sess.ID); err != nil {
		zlog.Warn().Err(err).Str("session_id", sess.ID).Msg("clear session")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

