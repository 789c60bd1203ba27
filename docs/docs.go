// Package docs registers the OpenAPI document served at /swagger.
// Regenerate with `swag init -g cmd/tripslot/main.go`.
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
        "/healthz": {
            "get": {"tags": ["ops"], "summary": "Liveness probe", "responses": {"200": {"description": "OK"}}}
        },
        "/listings/{id}/slots": {
            "get": {
                "tags": ["availability"],
                "summary": "List listing slots",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "from", "in": "query"},
                    {"type": "string", "name": "to", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/listings/{id}/slots/stream": {
            "get": {
                "tags": ["availability"],
                "summary": "Stream slot changes for a listing (SSE)",
                "produces": ["text/event-stream"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/slots/{id}": {
            "get": {
                "tags": ["availability"],
                "summary": "Get slot",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "slot_not_found"}}
            }
        },
        "/slots/{id}/bookings": {
            "post": {
                "tags": ["bookings"],
                "summary": "Create booking (idempotent)",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "validation_error"},
                    "409": {"description": "slot_full / slot_closed / slot_unavailable"},
                    "429": {"description": "rate_limited"}
                }
            }
        },
        "/slots/{id}/checkout": {
            "post": {
                "tags": ["bookings"],
                "summary": "Create booking and payment intent",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "503": {"description": "payment_unavailable"}}
            }
        },
        "/slots/{id}/waitlist": {
            "post": {
                "tags": ["waitlist"],
                "summary": "Join slot waitlist",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "409": {"description": "slot_not_full / already_joined"}}
            }
        },
        "/bookings/{id}": {
            "get": {
                "tags": ["bookings"],
                "summary": "Get booking",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "booking_not_found"}}
            }
        },
        "/bookings/{id}/cancel": {
            "post": {
                "tags": ["bookings"],
                "summary": "Cancel booking",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "not_cancellable"}}
            }
        },
        "/users/{id}/bookings": {
            "get": {
                "tags": ["bookings"],
                "summary": "List user bookings",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/users/{id}/notifications": {
            "get": {
                "tags": ["notifications"],
                "summary": "List user notifications, newest first",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "tags": ["notifications"],
                "summary": "Mark notification read",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/vendor/listings/{id}/rules": {
            "get": {
                "tags": ["vendor"],
                "summary": "List listing rules",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["vendor"],
                "summary": "Create availability rule",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "validation_error"}}
            }
        },
        "/vendor/rules/{id}": {
            "get": {
                "tags": ["vendor"],
                "summary": "Get rule",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "tags": ["vendor"],
                "summary": "Update rule; existing slots are kept",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "tags": ["vendor"],
                "summary": "Delete rule and its unbooked slots",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "409": {"description": "rule_in_use"}}
            }
        },
        "/vendor/rules/{id}/active": {
            "patch": {
                "tags": ["vendor"],
                "summary": "Activate or deactivate rule",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/vendor/rules/{id}/generate": {
            "post": {
                "tags": ["vendor"],
                "summary": "Generate rule slots now",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/vendor/slots/{id}/block": {
            "post": {
                "tags": ["vendor"],
                "summary": "Block slot",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "slot_has_bookings"}}
            }
        },
        "/vendor/slots/{id}/unblock": {
            "post": {
                "tags": ["vendor"],
                "summary": "Unblock slot",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/vendor/slots/{id}/cancel": {
            "post": {
                "tags": ["vendor"],
                "summary": "Cancel slot and all its bookings",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/webhooks/payments": {
            "post": {"tags": ["webhooks"], "summary": "Payment outcome callback", "parameters": [{"type": "string", "name": "X-Webhook-Secret", "in": "header"}], "responses": {"200": {"description": "OK"}, "401": {"description": "unauthenticated"}}}
        },
        "/webhooks/refunds": {
            "post": {"tags": ["webhooks"], "summary": "Refund processed callback", "parameters": [{"type": "string", "name": "X-Webhook-Secret", "in": "header"}], "responses": {"200": {"description": "OK"}, "401": {"description": "unauthenticated"}}}
        },
        "/admin/jobs/{name}": {
            "post": {
                "tags": ["admin"],
                "summary": "Run a maintenance job now",
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "unknown_job"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Tripslot API",
	Description:      "Availability and booking engine for travel activities.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
