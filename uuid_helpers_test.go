package auth_test

import (
	"testing"

	"github.com/google/uuid"
	auth "github.com/klasshub/go-lms-auth"
	"github.com/stretchr/testify/assert"
)

func TestHasUserUUID(t *testing.T) {
	cases := []struct {
		name    string
		session *auth.SessionObject
		want    bool
	}{
		{"local account subject", &auth.SessionObject{UserID: uuid.NewString()}, true},
		{"federated provider subject", &auth.SessionObject{UserID: "google-oauth2|4711"}, false},
		{"empty subject", &auth.SessionObject{}, false},
		{"nil session", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, auth.HasUserUUID(tc.session))
		})
	}
}
