package i18n

import "net/http"

const langCookie = "lang"

// Middleware injects a localizer into every request context. A "lang" query
// parameter wins and is remembered in a cookie; then the cookie, then
// Accept-Language. lang is the fallback.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chosen := lang
			switch q := r.URL.Query().Get("lang"); {
			case q != "":
				chosen = Match(q, lang)
				http.SetCookie(w, &http.Cookie{
					Name:     langCookie,
					Value:    chosen,
					Path:     "/",
					MaxAge:   365 * 24 * 60 * 60,
					SameSite: http.SameSiteLaxMode,
				})
			default:
				if c, err := r.Cookie(langCookie); err == nil && c.Value != "" {
					chosen = Match(c.Value, lang)
				} else if accept := r.Header.Get("Accept-Language"); accept != "" {
					chosen = Match(accept, lang)
				}
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(chosen, lang))
			ctx = WithLang(ctx, chosen)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
