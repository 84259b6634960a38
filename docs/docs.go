package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Leadflow Assignment API",
    "description": "Skills-based lead assignment, reassignment ledger and daily analytics",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/healthz": {"get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}, "503": {"description": "Store unavailable"}}}},
    "/api/skills": {"get": {"tags": ["catalog"], "summary": "List skills", "responses": {"200": {"description": "OK"}}}},
    "/api/consultants": {"get": {"tags": ["catalog"], "summary": "List consultants", "responses": {"200": {"description": "OK"}}}},
    "/api/assignments": {"post": {"tags": ["assignments"], "summary": "Assign a lead", "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid request"}, "422": {"description": "No consultant could be selected"}}}},
    "/api/assignments/{id}": {"get": {"tags": ["assignments"], "summary": "Get an assignment", "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
    "/api/assignments/{id}/reassign": {"post": {"tags": ["assignments"], "summary": "Reassign an assignment", "responses": {"200": {"description": "OK"}, "409": {"description": "Consultant no longer eligible"}, "422": {"description": "No consultant could be selected"}}}},
    "/api/assignments/{id}/history": {"get": {"tags": ["assignments"], "summary": "Assignment reassignment history", "responses": {"200": {"description": "OK"}}}},
    "/api/assignments/{id}/events": {"get": {"tags": ["assignments"], "summary": "Assignment ledger events", "responses": {"200": {"description": "OK"}}}},
    "/api/debug/matches": {"post": {"tags": ["debug"], "summary": "Preview matches", "responses": {"200": {"description": "OK"}}}},
    "/api/analytics/aggregate": {"post": {"tags": ["analytics"], "summary": "Aggregate daily analytics", "responses": {"200": {"description": "OK"}}}},
    "/api/analytics/daily": {"get": {"tags": ["analytics"], "summary": "Daily analytics", "responses": {"200": {"description": "OK"}}}}
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
