package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/dtroode/sheetkeeper/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = map[string]*template.Template{
	"index":    parsePage("index"),
	"register": parsePage("register"),
	"login":    parsePage("login"),
}

func parsePage(name string) *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
}

type pageData struct {
	Title   string
	Error   string
	Success string
	Form    model.UserRecord
	Record  *model.UserRecord
}

// Index renders the user type chooser.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "index", pageData{Title: "Select User Type"})
}

// RegisterForm renders the new user form.
func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register", pageData{Title: "New User Registration"})
}

// Register handles the new user form submission.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "New User Registration"}
	if err := r.ParseForm(); err != nil {
		data.Error = "invalid form submission"
		h.render(w, r, http.StatusBadRequest, "register", data)
		return
	}

	data.Form = model.UserRecord{
		Username:    r.PostForm.Get("username"),
		Password:    r.PostForm.Get("password"),
		PageID:      r.PostForm.Get("page_id"),
		AccessToken: r.PostForm.Get("access_token"),
	}

	if err := h.users.Register(r.Context(), data.Form); err != nil {
		status, message := statusFor(err)
		if status >= http.StatusInternalServerError {
			requestLogger(r, h.logger).Error("HTTP handler: registration failed", "error", err.Error())
		}
		data.Error = message
		h.render(w, r, status, "register", data)
		return
	}

	data.Form = model.UserRecord{}
	data.Success = "Login successful! Data saved."
	h.render(w, r, http.StatusOK, "register", data)
}

// LoginForm renders the existing user form.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login", pageData{Title: "Existing User Login"})
}

// Login looks up the submitted username and shows its stored data.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Existing User Login"}
	if err := r.ParseForm(); err != nil {
		data.Error = "invalid form submission"
		h.render(w, r, http.StatusBadRequest, "login", data)
		return
	}
	data.Form.Username = r.PostForm.Get("username")

	record, err := h.users.Authenticate(r.Context(), data.Form.Username)
	if err != nil {
		status, message := statusFor(err)
		if status >= http.StatusInternalServerError {
			requestLogger(r, h.logger).Error("HTTP handler: login failed", "error", err.Error())
		}
		if status == http.StatusNotFound {
			message = "User not found. Please check the username."
		}
		data.Error = message
		h.render(w, r, status, "login", data)
		return
	}

	data.Success = "Login successful!"
	data.Record = &record
	h.render(w, r, http.StatusOK, "login", data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	var buf bytes.Buffer
	if err := pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		requestLogger(r, h.logger).Error("HTTP handler: failed to render page", "page", page, "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
