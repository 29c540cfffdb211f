package models

import "github.com/golang-jwt/jwt/v5"

// Operator roles accepted by the control plane.
const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// OperatorClaims are the JWT claims carried by control-plane tokens.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}
