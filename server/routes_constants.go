package server

const (
	RouteAuthRegister = "/api/auth/register"
	RouteAuthLogin    = "/api/auth/login"
	RouteAuthRefresh  = "/api/auth/refresh"
	RouteAuthLogout   = "/api/auth/logout"
	RouteAuthMe       = "/api/auth/me"
	RouteProtected    = "/api/protected"
)
