package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/sahakari/backoffice/internal/middleware"
)

func setupAuthConfig() {
	viper.Set("jwt.secret_key", "test-secret-key")
	viper.Set("jwt.expiry_hours", 10)
	viper.Set("posting.business_date", "2026-08-28")
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 19456)
	viper.Set("argon2.threads", 2)
	viper.Set("argon2.key_length", 32)
	viper.Set("argon2.salt_length", 16)
}

func TestPasswordHashing(t *testing.T) {
	setupAuthConfig()

	hashed, err := hashPassword("password123")
	assert.NoError(t, err)
	assert.NotEqual(t, "password123", hashed)

	assert.True(t, verifyPassword("password123", hashed))
	assert.False(t, verifyPassword("wrong-password", hashed))
	assert.False(t, verifyPassword("password123", "not-a-valid-hash"))
}

func TestAuthService_Login(t *testing.T) {
	setupAuthConfig()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuthService(db, nil)

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBufferString("invalid"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("password below minimum length", func(t *testing.T) {
		body, _ := json.Marshal(LoginRequest{UserID: "teller01", Password: "short"})
		r := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectQuery("SELECT user_id, full_name, branch_id, role, password FROM users").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

		body, _ := json.Marshal(LoginRequest{UserID: "ghost", Password: "password123"})
		r := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT user_id, full_name, branch_id, role, password FROM users").
			WithArgs("teller01").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "full_name", "branch_id", "role", "password"}).
				AddRow("teller01", "A. Kulkarni", 3, "teller", hashed))

		body, _ := json.Marshal(LoginRequest{UserID: "teller01", Password: "wrong-password"})
		r := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("successful login sets the session cookie", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT user_id, full_name, branch_id, role, password FROM users").
			WithArgs("teller01").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "full_name", "branch_id", "role", "password"}).
				AddRow("teller01", "A. Kulkarni", 3, "teller", hashed))

		body, _ := json.Marshal(LoginRequest{UserID: "teller01", Password: "password123"})
		r := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var user StaffUser
		json.Unmarshal(w.Body.Bytes(), &user)
		assert.Equal(t, "teller01", user.UserID)
		assert.Equal(t, int64(3), user.BranchID)
		assert.Equal(t, "teller", user.Role)

		var session *http.Cookie
		for _, c := range w.Result().Cookies() {
			if c.Name == middleware.SessionCookieName {
				session = c
			}
		}
		assert.NotNil(t, session)
		assert.NotEmpty(t, session.Value)
		assert.True(t, session.HttpOnly)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_Logout(t *testing.T) {
	setupAuthConfig()

	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewAuthService(db, redisClient)

	token, err := generateSessionToken("teller01", 3, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)

	redisMock.ExpectSet("blacklist:"+token, "1", 10*time.Hour).SetVal("OK")

	r := httptest.NewRequest("POST", "/api/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	w := httptest.NewRecorder()

	service.Logout(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var cleared *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cleared = c
		}
	}
	assert.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}
