package api

// InitRouter registers all API routes on the initialized webserver.
func InitRouter() {
	registerAuthRoutes()
	registerUserRoutes()
	registerProductRoutes()
	registerOrderRoutes()
	registerMetricsRoutes()
}
