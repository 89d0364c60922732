// Package docs registers the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/health": {
            "get": {
                "tags": ["system"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/auth/sign-up": {
            "post": {
                "tags": ["auth"],
                "summary": "Register a new user",
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/auth/sign-in": {
            "post": {
                "tags": ["auth"],
                "summary": "Obtain an access token",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/v1/machines": {
            "get": {
                "tags": ["machines"],
                "summary": "List known machines",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/machines/status": {
            "get": {
                "tags": ["machines"],
                "summary": "Latest snapshot per machine",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/machines/{plant_id}/{machine_id}/data": {
            "get": {
                "tags": ["machines"],
                "summary": "Raw historical readings for one machine",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "plant_id", "in": "path", "required": true, "type": "integer"},
                    {"name": "machine_id", "in": "path", "required": true, "type": "integer"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/api/v1/machines/{plant_id}/{machine_id}/filtered": {
            "get": {
                "tags": ["machines"],
                "summary": "Downsampled change events for one machine",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "plant_id", "in": "path", "required": true, "type": "integer"},
                    {"name": "machine_id", "in": "path", "required": true, "type": "integer"},
                    {"name": "parameter", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/api/v1/kpis": {
            "get": {
                "tags": ["kpis"],
                "summary": "Accumulated KPI records",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/notifications": {
            "get": {
                "tags": ["notifications"],
                "summary": "List notifications",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "severity", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "plant_id", "in": "query", "type": "integer"},
                    {"name": "machine_id", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/api/v1/notifications/{id}/resolve": {
            "put": {
                "tags": ["notifications"],
                "summary": "Mark a notification resolved",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        }
    }
}`

var swaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Plant Monitor API",
	Description:      "IoT telemetry pipeline: machine simulation, ingestion, KPIs and alerting.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(swaggerInfo.InstanceName(), swaggerInfo)
}
