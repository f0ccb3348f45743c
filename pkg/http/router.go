package xhttp

import (
	"github.com/fasthttp/router"
)

type Router = router.Router
type Group = router.Group

func NewRouter() *Router {
	return router.New()
}

// CreateDefaultRouter answers unknown paths and methods with the same JSON
// error body the API handlers write, so clients decode a single shape.
func CreateDefaultRouter() *Router {
	r := NewRouter()
	r.RedirectFixedPath = true
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.HandleOPTIONS = true
	r.HandleMethodNotAllowed = true
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	routeError(ctx, StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
}

func MethodNotAllowedHandler(ctx *RequestCtx) {
	routeError(ctx, StatusMethodNotAllowed, "rest_no_route", "The method is not allowed for this route.")
}

func routeError(ctx *RequestCtx, status int, code, message string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"code":"` + code + `","error":"` + message + `"}`)
}
