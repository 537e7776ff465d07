package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/elevarm/goelevarm/onboard"
	"github.com/elevarm/goelevarm/onboard/hardware"
	"github.com/go-chi/chi"
)

func newArmTestApp(t *testing.T) *App {
	t.Helper()
	app := newTestApp(t)

	moveLog, err := NewStormMoveLog(app.DB)
	if err != nil {
		t.Fatal(err)
	}

	elevator := hardware.NewSimAxis("elevator", 0, 48, 1)
	elbow := hardware.NewSimAxis("elbow", -105, 105, 5)

	store := onboard.NewSetpointStore(map[string]onboard.SetpointConfig{
		onboard.SetpointZero: {ElbowAngle: -90, ElevatorHeight: 0},
		onboard.SetpointHigh: {ElbowAngle: 40, ElevatorHeight: 44},
	})

	safety := onboard.SafetyConfig{SafeElevatorHeight: 30, DeadzoneFront: 25, DeadzoneBack: -25}
	geometry := onboard.GeometryConfig{PivotOffset: 12, ArmLength: 22}

	app.Arm = onboard.NewArm(elevator, elbow, store, safety, geometry, app.Log)
	app.Arm.SetMoveRecorder(moveLog)
	app.Setpoints = store
	app.MoveLog = moveLog

	return app
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestArmStateEndpoint(t *testing.T) {
	app := newArmTestApp(t)

	Convey("state returns the telemetry snapshot", t, func() {
		req := httptest.NewRequest("GET", "/api/arm/state", nil)
		rr := httptest.NewRecorder()
		http.HandlerFunc(app.ArmState).ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)

		var snap onboard.Telemetry
		So(json.Unmarshal(rr.Body.Bytes(), &snap), ShouldBeNil)
		So(snap.ActiveMove, ShouldBeEmpty)
	})
}

func TestSetpointsEndpoint(t *testing.T) {
	app := newArmTestApp(t)

	Convey("setpoints lists every preset with its target", t, func() {
		req := httptest.NewRequest("GET", "/api/arm/setpoints", nil)
		rr := httptest.NewRecorder()
		http.HandlerFunc(app.ListSetpoints).ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)

		var payload []SetpointPayload
		So(json.Unmarshal(rr.Body.Bytes(), &payload), ShouldBeNil)
		So(payload, ShouldHaveLength, 2)
		So(payload[0].Name, ShouldEqual, "HIGH")
		So(payload[0].Target.ElevatorHeight, ShouldEqual, 44)
	})
}

func TestMoveEndpoint(t *testing.T) {
	app := newArmTestApp(t)

	Convey("a known setpoint is accepted", t, func() {
		req := withURLParam(httptest.NewRequest("POST", "/api/arm/move/high", nil), "name", "high")
		rr := httptest.NewRecorder()
		http.HandlerFunc(app.RequestMove).ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusAccepted)

		var payload MovePayload
		So(json.Unmarshal(rr.Body.Bytes(), &payload), ShouldBeNil)
		So(payload.Setpoint, ShouldEqual, "HIGH")

		Convey("and shows up as the active move", func() {
			snap := app.Arm.Snapshot()
			So(snap.ActiveMove, ShouldEqual, "HIGH")
		})
	})

	Convey("an unknown setpoint is a 404", t, func() {
		req := withURLParam(httptest.NewRequest("POST", "/api/arm/move/WAREHOUSE", nil), "name", "WAREHOUSE")
		rr := httptest.NewRecorder()
		http.HandlerFunc(app.RequestMove).ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusNotFound)
	})
}

func TestAllStopEndpoint(t *testing.T) {
	app := newArmTestApp(t)

	Convey("allstop abandons the active move", t, func() {
		m := app.Arm.MoveToNamed(onboard.SetpointHigh)

		req := httptest.NewRequest("POST", "/api/arm/allstop", nil)
		rr := httptest.NewRecorder()
		http.HandlerFunc(app.AllStop).ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)
		So(m.Superseded(), ShouldBeTrue)
		So(app.Arm.ActiveMove(), ShouldBeNil)
	})
}

func TestMoveLog(t *testing.T) {
	app := newArmTestApp(t)

	Convey("recorded moves come back newest first", t, func() {
		So(app.MoveLog.RecordMove(onboard.MoveRecord{Setpoint: "ZERO", Outcome: onboard.MoveSuperseded}), ShouldBeNil)
		So(app.MoveLog.RecordMove(onboard.MoveRecord{Setpoint: "HIGH", Outcome: onboard.MoveCompleted}), ShouldBeNil)

		records, err := app.MoveLog.Recent(10)
		So(err, ShouldBeNil)
		So(records, ShouldHaveLength, 2)
		So(records[0].Setpoint, ShouldEqual, "HIGH")
		So(records[1].Setpoint, ShouldEqual, "ZERO")

		Convey("and the limit caps the result", func() {
			records, err := app.MoveLog.Recent(1)
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
		})
	})

	Convey("an empty log is not an error", t, func() {
		fresh := newArmTestApp(t)
		records, err := fresh.MoveLog.Recent(10)
		So(err, ShouldBeNil)
		So(records, ShouldBeEmpty)
	})
}
