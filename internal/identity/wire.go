// Package identity is the client of the monochat identity service and the
// wire format both sides share. Messages travel as google.protobuf.Struct
// values on the default proto codec.
package identity

import (
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/session"

	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "monochat.identity.v1.Identity"

// Full method names, as seen by interceptors.
const (
	MethodSignUp = "/" + ServiceName + "/SignUp"
	MethodSignIn = "/" + ServiceName + "/SignIn"
	MethodWhoami = "/" + ServiceName + "/Whoami"
)

// AuthorizationHeader carries "Bearer <token>" in request metadata.
const AuthorizationHeader = "authorization"

// Credentials is the SignUp/SignIn request.
type Credentials struct {
	Email       string
	Password    string
	DisplayName string // sign-up only
	PhotoURL    string // sign-up only
}

// Struct encodes c for the wire.
func (c Credentials) Struct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"email":        structpb.NewStringValue(c.Email),
		"password":     structpb.NewStringValue(c.Password),
		"display_name": structpb.NewStringValue(c.DisplayName),
		"photo_url":    structpb.NewStringValue(c.PhotoURL),
	}}
}

// CredentialsFromStruct decodes a request; missing fields are empty.
func CredentialsFromStruct(s *structpb.Struct) Credentials {
	return Credentials{
		Email:       stringField(s, "email"),
		Password:    stringField(s, "password"),
		DisplayName: stringField(s, "display_name"),
		PhotoURL:    stringField(s, "photo_url"),
	}
}

// Grant is the SignUp/SignIn/Whoami response. Whoami leaves Token empty.
type Grant struct {
	Token     string
	ExpiresAt time.Time
	Principal session.Principal
}

// Struct encodes g for the wire.
func (g Grant) Struct() *structpb.Struct {
	fields := map[string]*structpb.Value{
		"user_id":      structpb.NewStringValue(g.Principal.ID),
		"email":        structpb.NewStringValue(g.Principal.Email),
		"display_name": structpb.NewStringValue(g.Principal.DisplayName),
		"photo_url":    structpb.NewStringValue(g.Principal.PhotoURL),
	}
	if g.Token != "" {
		fields["token"] = structpb.NewStringValue(g.Token)
	}
	if !g.ExpiresAt.IsZero() {
		fields["expires_at"] = structpb.NewNumberValue(float64(g.ExpiresAt.Unix()))
	}
	return &structpb.Struct{Fields: fields}
}

// GrantFromStruct decodes a response.
func GrantFromStruct(s *structpb.Struct) Grant {
	g := Grant{
		Token: stringField(s, "token"),
		Principal: session.Principal{
			ID:          stringField(s, "user_id"),
			Email:       stringField(s, "email"),
			DisplayName: stringField(s, "display_name"),
			PhotoURL:    stringField(s, "photo_url"),
		},
	}
	if v, ok := s.GetFields()["expires_at"]; ok {
		g.ExpiresAt = time.Unix(int64(v.GetNumberValue()), 0).UTC()
	}
	return g
}

func stringField(s *structpb.Struct, key string) string {
	if v, ok := s.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}
