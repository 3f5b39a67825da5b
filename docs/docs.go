// Package docs registers the swagger document served under /swagger.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "All dependencies are available", "schema": {"$ref": "#/definitions/entity.HealthCheckResponse"}},
                    "503": {"description": "A dependency is unavailable", "schema": {"$ref": "#/definitions/entity.HealthCheckResponse"}}
                }
            }
        },
        "/v1/checkout": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Order"],
                "summary": "Checkout",
                "parameters": [{"description": "Checkout request", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/entity.CheckoutRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/entity.CheckoutResponse"}},
                    "400": {"description": "Bad Request"},
                    "409": {"description": "Conflict"},
                    "500": {"description": "Internal Server Error"}
                }
            }
        },
        "/v1/payments": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Payment"],
                "summary": "Pay for an order",
                "parameters": [{"description": "Payment request", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/entity.PaymentRequest"}}],
                "responses": {
                    "200": {"description": "Payment processed, see success", "schema": {"$ref": "#/definitions/entity.PaymentResponse"}},
                    "400": {"description": "Bad Request"},
                    "404": {"description": "Not Found"},
                    "500": {"description": "Internal Server Error"}
                }
            }
        },
        "/v1/orders/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Order"],
                "summary": "Order status",
                "parameters": [{"type": "integer", "description": "Order ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/entity.OrderDetail"}},
                    "400": {"description": "Bad Request"},
                    "404": {"description": "Not Found"},
                    "500": {"description": "Internal Server Error"}
                }
            }
        },
        "/v1/cart/items": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Cart"],
                "summary": "Add to cart",
                "parameters": [{"description": "Cart item", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/entity.AddToCartRequest"}}],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"},
                    "404": {"description": "Not Found"},
                    "500": {"description": "Internal Server Error"}
                }
            }
        },
        "/v1/outbox/dead-letters": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Outbox"],
                "summary": "Dead-lettered outbox messages",
                "parameters": [{"type": "integer", "description": "Maximum rows (default 100, max 500)", "name": "limit", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/entity.OutboxMessage"}}},
                    "400": {"description": "Bad Request"},
                    "500": {"description": "Internal Server Error"}
                }
            }
        },
        "/v1/outbox/{id}/requeue": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Outbox"],
                "summary": "Requeue an outbox message",
                "parameters": [{"type": "integer", "description": "Outbox message ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"},
                    "404": {"description": "Not Found"},
                    "500": {"description": "Internal Server Error"}
                }
            }
        },
        "/v1/users/registered": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["User"],
                "summary": "Announce a registered user",
                "parameters": [{"description": "Registered user", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/entity.UserRegisteredRequest"}}],
                "responses": {
                    "202": {"description": "Accepted"},
                    "400": {"description": "Bad Request"},
                    "500": {"description": "Internal Server Error"}
                }
            }
        }
    },
    "definitions": {
        "entity.AddToCartRequest": {
            "type": "object",
            "required": ["productId", "quantity", "userId"],
            "properties": {
                "productId": {"type": "integer"},
                "quantity": {"type": "integer", "maximum": 1000},
                "userId": {"type": "integer"}
            }
        },
        "entity.CheckoutRequest": {
            "type": "object",
            "required": ["userId"],
            "properties": {
                "note": {"type": "string", "maxLength": 1000},
                "paymentMethod": {"type": "string", "maxLength": 50},
                "shippingAddress": {"type": "string", "maxLength": 500},
                "userId": {"type": "integer"}
            }
        },
        "entity.CheckoutResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "orderId": {"type": "integer"},
                "totalAmount": {"type": "integer"}
            }
        },
        "entity.HealthCheckItem": {
            "type": "object",
            "properties": {
                "driver": {"type": "string", "example": "postgres"},
                "error": {"type": "string", "example": "storage unreachable"},
                "status": {"type": "boolean", "example": true}
            }
        },
        "entity.HealthCheckResponse": {
            "type": "object",
            "properties": {
                "checks": {"$ref": "#/definitions/entity.HealthChecks"},
                "message": {"type": "string", "example": "success"},
                "status": {"type": "boolean", "example": true},
                "version": {"type": "string", "example": "0.1.0"}
            }
        },
        "entity.HealthChecks": {
            "type": "object",
            "properties": {
                "bus": {"$ref": "#/definitions/entity.HealthCheckItem"},
                "storage": {"$ref": "#/definitions/entity.HealthCheckItem"}
            }
        },
        "entity.Order": {
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "id": {"type": "integer"},
                "note": {"type": "string"},
                "orderDate": {"type": "string"},
                "orderStatus": {"type": "integer"},
                "paymentMethod": {"type": "string"},
                "paymentStatus": {"type": "string"},
                "shippingAddress": {"type": "string"},
                "totalAmount": {"type": "integer"},
                "updatedAt": {"type": "string"},
                "userId": {"type": "integer"}
            }
        },
        "entity.OrderDetail": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/entity.OrderItem"}},
                "order": {"$ref": "#/definitions/entity.Order"}
            }
        },
        "entity.OrderItem": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "orderId": {"type": "integer"},
                "productId": {"type": "integer"},
                "quantity": {"type": "integer"},
                "total": {"type": "integer"},
                "unitPrice": {"type": "integer"}
            }
        },
        "entity.OutboxMessage": {
            "type": "object",
            "properties": {
                "claimedBy": {"type": "string"},
                "claimedUntil": {"type": "string"},
                "error": {"type": "string"},
                "errorCount": {"type": "integer"},
                "eventId": {"type": "string"},
                "eventTypeName": {"type": "string"},
                "id": {"type": "integer"},
                "occurredOn": {"type": "string"},
                "payload": {"type": "object"},
                "processedOn": {"type": "string"}
            }
        },
        "entity.PaymentRequest": {
            "type": "object",
            "required": ["amount", "orderId"],
            "properties": {
                "amount": {"type": "integer"},
                "idempotencyKey": {"type": "string"},
                "orderId": {"type": "integer"},
                "paymentMethod": {"type": "string", "maxLength": 50}
            }
        },
        "entity.PaymentResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "paymentDate": {"type": "string"},
                "paymentId": {"type": "integer"},
                "success": {"type": "boolean"},
                "transactionId": {"type": "string"}
            }
        },
        "entity.UserRegisteredRequest": {
            "type": "object",
            "required": ["email", "name", "userId"],
            "properties": {
                "email": {"type": "string"},
                "name": {"type": "string", "maxLength": 200, "minLength": 1},
                "userId": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Marketplace Service API",
	Description:      "Checkout and order saga over a transactional outbox",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
