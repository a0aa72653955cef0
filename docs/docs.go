// Package docs registers the OpenAPI description served under /swagger/.
// Regenerate with `swag init -g cmd/api/main.go` after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/providers": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Providers"],
                "summary": "List providers",
                "responses": {
                    "200": {"description": "Configured providers", "schema": {"type": "array", "items": {"$ref": "#/definitions/dto.ProviderDTO"}}}
                }
            }
        },
        "/connections": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Connections"],
                "summary": "List connection statuses",
                "responses": {
                    "200": {"description": "Connection statuses", "schema": {"type": "array", "items": {"$ref": "#/definitions/dto.ConnectionStatusDTO"}}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/connections/{provider}/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Connections"],
                "summary": "Check connection status",
                "parameters": [{"type": "string", "description": "Provider id", "name": "provider", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Connection status", "schema": {"$ref": "#/definitions/dto.ConnectionStatusDTO"}},
                    "404": {"description": "Unknown provider", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/connections/{provider}/authorize": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Connections"],
                "summary": "Start authorization",
                "parameters": [
                    {"type": "string", "description": "Provider id", "name": "provider", "in": "path", "required": true},
                    {"type": "string", "description": "Opaque state echoed back by the provider", "name": "state", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Authorization URL", "schema": {"$ref": "#/definitions/dto.AuthorizeResponse"}},
                    "404": {"description": "Unknown provider", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/connections/{provider}/connect": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Connections"],
                "summary": "Connect provider",
                "parameters": [
                    {"type": "string", "description": "Provider id", "name": "provider", "in": "path", "required": true},
                    {"description": "Authorization code", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.ConnectRequest"}}
                ],
                "responses": {
                    "200": {"description": "Connection status", "schema": {"$ref": "#/definitions/dto.ConnectionStatusDTO"}},
                    "400": {"description": "Invalid request or validation error", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "502": {"description": "Code exchange failed", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/connections/{provider}/disconnect": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Connections"],
                "summary": "Disconnect provider",
                "parameters": [{"type": "string", "description": "Provider id", "name": "provider", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Provider disconnected", "schema": {"$ref": "#/definitions/utils.SuccessResponse"}},
                    "404": {"description": "Unknown provider", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/connections/{provider}/data/{endpoint}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Connections"],
                "summary": "Fetch provider data",
                "parameters": [
                    {"type": "string", "description": "Provider id", "name": "provider", "in": "path", "required": true},
                    {"type": "string", "description": "Endpoint name", "name": "endpoint", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Endpoint items", "schema": {"$ref": "#/definitions/dto.FetchResponse"}},
                    "401": {"description": "Authorization expired", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "403": {"description": "Customer action, scope or organization link required", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "503": {"description": "Provider temporarily unavailable", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "Application is alive"}}
            }
        },
        "/readyz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "Application is ready"},
                    "503": {"description": "Service unavailable", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "dto.AuthorizeResponse": {
            "type": "object",
            "properties": {"provider": {"type": "string"}, "url": {"type": "string"}}
        },
        "dto.CapabilityDTO": {
            "type": "object",
            "properties": {
                "endpoint": {"type": "string"},
                "available": {"type": "boolean"},
                "itemCount": {"type": "integer"},
                "durationMs": {"type": "integer"},
                "error": {"$ref": "#/definitions/dto.CapabilityError"}
            }
        },
        "dto.CapabilityError": {
            "type": "object",
            "properties": {
                "kind": {"type": "string", "enum": ["unauthorized", "required_customer_action", "insufficient_scope", "connection_not_established", "transient", "unknown"]},
                "url": {"type": "string"},
                "missing": {"type": "array", "items": {"type": "string"}},
                "message": {"type": "string"}
            }
        },
        "dto.ConnectRequest": {
            "type": "object",
            "required": ["code"],
            "properties": {"code": {"type": "string", "maxLength": 4096}}
        },
        "dto.ConnectionStatusDTO": {
            "type": "object",
            "properties": {
                "provider": {"type": "string"},
                "status": {"type": "string", "enum": ["disconnected", "auth_required", "connection_required", "partially_connected", "connected"]},
                "usable": {"type": "boolean"},
                "message": {"type": "string"},
                "remediationLinks": {"type": "array", "items": {"type": "string"}},
                "capabilities": {"type": "array", "items": {"$ref": "#/definitions/dto.CapabilityDTO"}},
                "checkedAt": {"type": "string", "format": "date-time"}
            }
        },
        "dto.FetchResponse": {
            "type": "object",
            "properties": {
                "provider": {"type": "string"},
                "endpoint": {"type": "string"},
                "items": {"type": "array", "items": {"type": "object"}},
                "itemCount": {"type": "integer"},
                "sample": {"type": "boolean"}
            }
        },
        "dto.ProviderDTO": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "scopes": {"type": "array", "items": {"type": "string"}},
                "endpoints": {"type": "array", "items": {"type": "string"}}
            }
        },
        "utils.ErrorDetail": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}, "details": {}}
        },
        "utils.ErrorResponse": {
            "type": "object",
            "properties": {"success": {"type": "boolean"}, "error": {"$ref": "#/definitions/utils.ErrorDetail"}}
        },
        "utils.SuccessResponse": {
            "type": "object",
            "properties": {"success": {"type": "boolean"}, "message": {"type": "string"}, "data": {}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "farmlink API",
	Description:      "Connection lifecycle for OAuth farm-data providers.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
