package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Academic Staff Service Request API",
        "description": "Workflow-routed service requests for academic staff",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Sessions and credentials"},
        {"name": "Requests", "description": "Service requests and workflow transitions"},
        {"name": "Workflow", "description": "Approval chain administration"},
        {"name": "Directory", "description": "Staff, faculties and departments"},
        {"name": "Notifications", "description": "Per-user workflow notifications"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate staff member",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests": {
            "get": {
                "tags": ["Requests"],
                "summary": "List requests visible to the caller",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "assigned", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Requests"],
                "summary": "Create request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRequestRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "No workflow configured or no approver resolvable"}
                }
            }
        },
        "/requests/{id}": {
            "get": {
                "tags": ["Requests"],
                "summary": "Get request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/requests/{id}/timeline": {
            "get": {
                "tags": ["Requests"],
                "summary": "Get request timeline",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/submit": {
            "post": {
                "tags": ["Requests"],
                "summary": "Submit draft",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict"}
                }
            }
        },
        "/requests/{id}/action": {
            "post": {
                "tags": ["Requests"],
                "summary": "Approve, reject or request modification",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the current approver"},
                    "409": {"description": "Already finalized or modified concurrently"}
                }
            }
        },
        "/requests/{id}/resubmit": {
            "post": {
                "tags": ["Requests"],
                "summary": "Resubmit after modification",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResubmitRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/cancel": {
            "post": {
                "tags": ["Requests"],
                "summary": "Cancel request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/complete": {
            "post": {
                "tags": ["Requests"],
                "summary": "Mark approved request as fulfilled",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflow-configs": {
            "get": {
                "tags": ["Workflow"],
                "summary": "List workflow configs",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Workflow"],
                "summary": "Upsert workflow config",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertWorkflowConfigRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List notifications",
                "parameters": [
                    {"name": "unread", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateRequestRequest": {
            "type": "object",
            "properties": {
                "request_type": {"type": "string", "enum": ["LEAVE", "CONFERENCE_TRAINING", "RESOURCE_REQUISITION", "GENERIC"]},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "draft": {"type": "boolean"},
                "leave": {"$ref": "#/definitions/LeaveDetails"},
                "conference": {"$ref": "#/definitions/ConferenceDetails"},
                "resource": {"$ref": "#/definitions/ResourceDetails"}
            },
            "required": ["request_type", "title"]
        },
        "ActionRequest": {
            "type": "object",
            "properties": {
                "action": {"type": "string", "enum": ["approve", "reject", "request_modification"]},
                "comment": {"type": "string"}
            },
            "required": ["action"]
        },
        "ResubmitRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "leave": {"$ref": "#/definitions/LeaveDetails"},
                "conference": {"$ref": "#/definitions/ConferenceDetails"},
                "resource": {"$ref": "#/definitions/ResourceDetails"}
            }
        },
        "LeaveDetails": {
            "type": "object",
            "properties": {
                "leave_type": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"},
                "substitute_name": {"type": "string"}
            }
        },
        "ConferenceDetails": {
            "type": "object",
            "properties": {
                "event_name": {"type": "string"},
                "event_location": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"},
                "estimated_cost": {"type": "number"}
            }
        },
        "ResourceDetails": {
            "type": "object",
            "properties": {
                "items": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/ResourceItem"}
                }
            }
        },
        "ResourceItem": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "quantity": {"type": "integer"},
                "reason": {"type": "string"}
            }
        },
        "UpsertWorkflowConfigRequest": {
            "type": "object",
            "properties": {
                "request_type": {"type": "string"},
                "department_id": {"type": "string"},
                "stages": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/StageInput"}
                }
            },
            "required": ["request_type", "stages"]
        },
        "StageInput": {
            "type": "object",
            "properties": {
                "role": {"type": "string"},
                "label": {"type": "string"}
            },
            "required": ["role", "label"]
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
