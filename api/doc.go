// Package api defines the request and response types of the evaluation
// orchestration HTTP API.
//
// # API Overview
//
// evalcore provides a RESTful API for:
//   - Defining and versioning evaluation suites and test cases
//   - Executing suites against a target conversation system
//   - Tracking execution progress and summaries, including live SSE streams
//   - Health monitoring and metrics
//
// # Authentication
//
// Most API endpoints require authentication via a bearer JWT, from which
// tenant, user and role claims are derived:
//
//	Authorization: Bearer <token>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Generating Documentation
//
// cmd/evalcore/main.go and the health handlers in api/handlers carry swag
// annotations. Swagger documentation can be generated from them with:
//
//	swag init -g cmd/evalcore/main.go -o api --parseDependency --parseInternal
//
// No generated specification file is kept in the repository.
package api
