// Package docs holds the OpenAPI description served at /swagger/index.html.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Profile"],
                "summary": "Current profile",
                "operationId": "getMe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Profile"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/profiles/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Profile"],
                "summary": "Display profile of another user",
                "operationId": "getProfile",
                "parameters": [{"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Profile"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/children/{id}/logs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Logs"],
                "summary": "Timeline of a child",
                "operationId": "listLogs",
                "parameters": [
                    {"type": "string", "description": "Child ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Page (1-based)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size (1..100)", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListLogsResponse"}},
                    "304": {"description": "Not Modified"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Logs"],
                "summary": "Add a timeline entry",
                "operationId": "createLog",
                "parameters": [
                    {"type": "string", "description": "Child ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Retry key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Entry", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateLogRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.LogEntry"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/children/{id}/messages": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "Message room of a child",
                "operationId": "listMessages",
                "parameters": [{"type": "string", "description": "Child ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListMessagesResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "Post a message",
                "operationId": "postMessage",
                "parameters": [
                    {"type": "string", "description": "Child ID", "name": "id", "in": "path", "required": true},
                    {"description": "Message", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PostMessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Message"}}
                }
            }
        },
        "/notifications/{id}": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Mark a notification read",
                "operationId": "markNotificationRead",
                "parameters": [{"type": "string", "description": "Notification ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Notification"}}
                }
            }
        },
        "/children/{id}/feed/ws": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Realtime"],
                "summary": "Live row changes over a websocket",
                "operationId": "feed",
                "parameters": [
                    {"type": "string", "description": "Child ID", "name": "id", "in": "path", "required": true},
                    {"enum": ["logs", "messages", "notifications"], "type": "string", "description": "Resource", "name": "resource", "in": "query", "required": true}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "child not found"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.CreateLogRequest": {
            "type": "object",
            "required": ["title"],
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "audio_url": {"type": "string"},
                "document_url": {"type": "string"},
                "client_ref": {"type": "string"}
            }
        },
        "handlers.PostMessageRequest": {
            "type": "object",
            "required": ["content"],
            "properties": {
                "content": {"type": "string"},
                "client_ref": {"type": "string"}
            }
        },
        "handlers.ListLogsResponse": {
            "type": "object",
            "properties": {
                "logs": {"type": "array", "items": {"$ref": "#/definitions/domain.LogEntry"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.ListMessagesResponse": {
            "type": "object",
            "properties": {
                "messages": {"type": "array", "items": {"$ref": "#/definitions/domain.Message"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "domain.Profile": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "email": {"type": "string"},
                "role": {"type": "string", "enum": ["parent", "teacher", "doctor", "admin"]},
                "role_set": {"type": "boolean"}
            }
        },
        "domain.LogEntry": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "child_id": {"type": "string"},
                "user_id": {"type": "string"},
                "author_role": {"type": "string"},
                "author_name": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "tags": {"type": "array", "items": {"type": "string"}},
                "emotion_score": {"type": "number"},
                "audio_url": {"type": "string"},
                "document_url": {"type": "string"},
                "client_ref": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "domain.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "child_id": {"type": "string"},
                "user_id": {"type": "string"},
                "author_name": {"type": "string"},
                "content": {"type": "string"},
                "client_ref": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "domain.Notification": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "child_id": {"type": "string"},
                "log_id": {"type": "string"},
                "kind": {"type": "string"},
                "title": {"type": "string"},
                "body": {"type": "string"},
                "read": {"type": "boolean"},
                "created_at": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "\"Bearer <access token>\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Parentrak API",
	Description:      "Child-care coordination: timelines, messages, notifications, appointments, milestones and AI insights shared by a child's care team.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
