package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "geoattend-test"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "admin", want: RoleAdmin},
		{in: "Teacher", want: RoleTeacher},
		{in: " student ", want: RoleStudent},
		{in: "teachr", want: RoleUnknown, wantErr: true},
		{in: "", want: RoleUnknown, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownRole)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRolePermissions(t *testing.T) {
	assert.True(t, RoleAdmin.CanMarkAttendance())
	assert.True(t, RoleTeacher.CanMarkAttendance())
	assert.False(t, RoleStudent.CanMarkAttendance())
	assert.False(t, RoleUnknown.CanMarkAttendance())

	assert.True(t, RoleAdmin.CanViewAllAttendance())
	assert.False(t, RoleTeacher.CanViewAllAttendance())
	assert.False(t, RoleStudent.CanViewAllAttendance())
}

func TestIssueParse(t *testing.T) {
	tok, err := Issue(Actor{ID: "t-1", Role: RoleTeacher}, testIssuer, testKey, time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), tok.ExpiresAt, 2*time.Second)

	actor, err := Parse(tok.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, Actor{ID: "t-1", Role: RoleTeacher}, actor)

	_, err = Parse(tok.AccessToken, "other-key", testIssuer)
	assert.Error(t, err)

	_, err = Parse(tok.AccessToken, testKey, "someone-else")
	assert.Error(t, err)
}

func TestIssueRejectsIncompleteActor(t *testing.T) {
	_, err := Issue(Actor{Role: RoleAdmin}, testIssuer, testKey, time.Minute)
	assert.Error(t, err)

	_, err = Issue(Actor{ID: "x"}, testIssuer, testKey, time.Minute)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestParseExpiredAndUnknownRole(t *testing.T) {
	tok, err := Issue(Actor{ID: "a-1", Role: RoleAdmin}, testIssuer, testKey, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(tok.AccessToken, testKey, testIssuer)
	assert.Error(t, err)

	claims := Claims{
		Role: "janitor",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "j-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
	require.NoError(t, err)
	_, err = Parse(signed, testKey, testIssuer)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestSessionMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tok, err := Issue(Actor{ID: "t-9", Role: RoleTeacher}, testIssuer, testKey, time.Minute)
	require.NoError(t, err)

	r := gin.New()
	r.Use(Session(testKey, testIssuer))
	r.GET("/open", func(c *gin.Context) {
		if a := ActorFrom(c); a != nil {
			c.String(http.StatusOK, a.ID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	r.GET("/closed", RequireActor(), func(c *gin.Context) {
		c.String(http.StatusOK, ActorFrom(c).Role.String())
	})

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantBody string
	}{
		{name: "anonymous open", path: "/open", wantCode: http.StatusOK, wantBody: "anonymous"},
		{name: "bearer open", path: "/open", header: "Bearer " + tok.AccessToken, wantCode: http.StatusOK, wantBody: "t-9"},
		{name: "lowercase scheme", path: "/open", header: "bearer " + tok.AccessToken, wantCode: http.StatusOK, wantBody: "t-9"},
		{name: "garbage token", path: "/open", header: "Bearer nope", wantCode: http.StatusOK, wantBody: "anonymous"},
		{name: "anonymous closed", path: "/closed", wantCode: http.StatusUnauthorized, wantBody: `{"error":"Unauthorized"}`},
		{name: "bearer closed", path: "/closed", header: "Bearer " + tok.AccessToken, wantCode: http.StatusOK, wantBody: "teacher"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}
