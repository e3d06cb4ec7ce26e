package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Curricula API",
        "description": "Versioned approval workflow for courses, degrees, and enrollments",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Login, refresh, logout"},
        {"name": "Entities", "description": "Course and degree versions"},
        {"name": "Workflow", "description": "Submit, decide, publish, fork"},
        {"name": "Collaborators", "description": "Edit grants on versions"},
        {"name": "Enrollments", "description": "Student enrollment requests and batch review"},
        {"name": "Exports", "description": "Timeline and lineage reports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and receive a token pair",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Entities"],
                "summary": "List course versions",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "department", "in": "query", "type": "string"},
                    {"name": "baseCode", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Entities"],
                "summary": "Create a course draft at version 1",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateEntityRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Code already exists"}
                }
            }
        },
        "/courses/{id}/submit": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Submit a draft for approval",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Illegal transition"},
                    "409": {"description": "Stale state"}
                }
            }
        },
        "/courses/{id}/decide": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Approve, reject, or request changes",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecideRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed"},
                    "403": {"description": "Not the department head"},
                    "409": {"description": "Already decided"}
                }
            }
        },
        "/courses/{id}/publish": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Activate an approved version, archiving the prior active one",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/edit-request": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Resolve where an edit should happen (in place or a new fork)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/EditRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent version creation"}
                }
            }
        },
        "/courses/{id}/lineage": {
            "get": {
                "tags": ["Entities"],
                "summary": "List all versions sharing the base code",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/timeline": {
            "get": {
                "tags": ["Entities"],
                "summary": "Audit timeline of a version",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/collaborators": {
            "get": {
                "tags": ["Collaborators"],
                "summary": "List edit grants",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Collaborators"],
                "summary": "Grant edit access",
                "responses": {
                    "201": {"description": "Created"},
                    "403": {"description": "Grant window closed"}
                }
            }
        },
        "/approvals/pending": {
            "get": {
                "tags": ["Workflow"],
                "summary": "Department approval queue",
                "parameters": [
                    {"name": "type", "in": "query", "type": "string", "enum": ["courses", "degrees"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/decide": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Apply one decision across a batch of enrollment ids",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecideEnrollmentsRequest"}}
                ],
                "responses": {
                    "200": {"description": "All ids decided", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "207": {"description": "Partial success; inspect succeeded and failed lists"}
                }
            }
        },
        "/exports/download": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a completed export via signed token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateEntityRequest": {
            "type": "object",
            "required": ["baseCode", "departmentCode", "name"],
            "properties": {
                "baseCode": {"type": "string"},
                "departmentCode": {"type": "string"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "credits": {"type": "integer"}
            }
        },
        "DecideRequest": {
            "type": "object",
            "required": ["action"],
            "properties": {
                "action": {"type": "string", "enum": ["APPROVE", "REJECT", "REQUEST_CHANGES"]},
                "reason": {"type": "string"}
            }
        },
        "EditRequest": {
            "type": "object",
            "properties": {
                "copyCollaborators": {"type": "boolean"}
            }
        },
        "DecideEnrollmentsRequest": {
            "type": "object",
            "required": ["ids", "action"],
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}},
                "action": {"type": "string", "enum": ["APPROVE", "REJECT"]},
                "reason": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
