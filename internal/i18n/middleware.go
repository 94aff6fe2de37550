package i18n

import "net/http"

// LangCookie remembers an explicit language choice between requests.
const LangCookie = "lang"

// Middleware injects a localizer into every request context. The language comes from the
// ?lang query parameter, then the lang cookie, then Accept-Language, then the default.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			choice := r.URL.Query().Get("lang")
			if choice == "" {
				if c, err := r.Cookie(LangCookie); err == nil {
					choice = c.Value
				}
			}
			lang := Negotiate(choice, r.Header.Get("Accept-Language"))
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
