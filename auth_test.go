package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	db, err := openDb(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	return &App{
		DB:        db,
		Log:       zap.NewNop().Sugar(),
		JWTSecret: []byte("test-secret"),
		JWTIssuer: "TEST",
	}
}

func TestUser(t *testing.T) {
	Convey("Methods work as expected", t, func() {
		user := new(User)
		Convey("Setting and verify password works correctly with hashes", func() {
			user.SetPassword([]byte("hello123"))
			So(user.Password, ShouldStartWith, "$")

			So(user.VerifyPassword([]byte("hello123")), ShouldBeNil)
			So(user.VerifyPassword([]byte("hello12")), ShouldNotBeNil)
		})

		Convey("Invalid hash returns the correct error code", func() {
			user.Password = "I DON'T WORK"
			So(user.VerifyPassword([]byte("hello123")).Error(), ShouldContainSubstring, "hashedSecret too short")
		})
	})
}

func TestJWTGeneration(t *testing.T) {
	app := newTestApp(t)

	Convey("test basic claim creation", t, func() {
		ts, err := app.newJWT("hello test")
		So(ts, ShouldNotBeEmpty)
		So(err, ShouldBeNil)
	})
}

func TestLogin(t *testing.T) {
	app := newTestApp(t)

	user := &User{
		Email: "login@test.case",
	}
	user.SetPassword([]byte("testing123"))
	if err := app.DB.Save(user); err != nil {
		t.Fatal(err)
	}

	login := func(email, password string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(&LoginPayload{Email: email, Password: password})

		req := httptest.NewRequest("POST", "/api/login", bytes.NewBuffer(body))
		req.Header.Add("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		http.HandlerFunc(app.Login).ServeHTTP(rr, req)
		return rr
	}

	Convey("Valid request works as expected", t, func() {
		rr := login("login@test.case", "testing123")
		So(rr.Code, ShouldEqual, http.StatusOK)
		So(rr.Body.String(), ShouldContainSubstring, `"token":`)
	})

	Convey("Invalid credentials return error", t, func() {
		Convey("Incorrect username provides 404", func() {
			rr := login("login-no@test.case", "testing123")
			So(rr.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Incorrect password provides 403", func() {
			rr := login("login@test.case", "testing12")
			So(rr.Code, ShouldEqual, http.StatusForbidden)
		})
	})
}

func TestValidateJWT(t *testing.T) {
	app := newTestApp(t)

	protected := app.ValidateJWT(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Success"))
	}))

	Convey("A missing token is unauthorized", t, func() {
		req := httptest.NewRequest("GET", "/api/arm/state", nil)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		So(rr.Code, ShouldEqual, http.StatusUnauthorized)
	})

	Convey("A garbage token is unauthorized", t, func() {
		req := httptest.NewRequest("GET", "/api/arm/state", nil)
		req.Header.Add("Authorization", "Bearer not.a.token")
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		So(rr.Code, ShouldEqual, http.StatusUnauthorized)
	})

	Convey("A freshly issued token passes", t, func() {
		ts, err := app.newJWT("login@test.case")
		So(err, ShouldBeNil)

		Convey("via the authorization header", func() {
			req := httptest.NewRequest("GET", "/api/arm/state", nil)
			req.Header.Add("Authorization", "Bearer "+ts)
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)
			So(rr.Code, ShouldEqual, http.StatusOK)
			So(rr.Body.String(), ShouldEqual, "Success")
		})

		Convey("via the query string", func() {
			req := httptest.NewRequest("GET", "/api/arm/state?jwt="+ts, nil)
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)
			So(rr.Code, ShouldEqual, http.StatusOK)
		})

		Convey("via a cookie", func() {
			req := httptest.NewRequest("GET", "/api/arm/state", nil)
			req.AddCookie(&http.Cookie{Name: "jwt", Value: ts})
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)
			So(rr.Code, ShouldEqual, http.StatusOK)
		})
	})
}
