package hardware

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSimAxis(t *testing.T) {
	Convey("a fresh axis homes to the min limit before tracking", t, func() {
		axis := NewSimAxis("elevator", 0, 48, 4)
		So(axis.GetState(), ShouldEqual, AxisHoming)

		for i := 0; i < 20 && axis.GetState() != AxisKnown; i++ {
			axis.Update()
		}

		So(axis.GetState(), ShouldEqual, AxisKnown)
		So(axis.GetPosition(), ShouldEqual, 0)
		So(axis.IsAtMinLimit(), ShouldBeTrue)
		So(axis.GetOutput(), ShouldEqual, 0)

		Convey("then it walks toward its setpoint one step per update", func() {
			axis.SetPosition(10)

			axis.Update()
			So(axis.GetPosition(), ShouldEqual, 4)
			So(axis.GetOutput(), ShouldEqual, 1)

			axis.Update()
			axis.Update()
			So(axis.GetPosition(), ShouldEqual, 10)
			So(axis.GetOutput(), ShouldEqual, 0)
		})

		Convey("commands beyond the travel bounds are clamped", func() {
			axis.SetPosition(500)
			for i := 0; i < 30; i++ {
				axis.Update()
			}

			So(axis.GetPosition(), ShouldEqual, 48)
			So(axis.IsAtMaxLimit(), ShouldBeTrue)
		})

		Convey("negative commands clamp to the min limit", func() {
			axis.SetPosition(-20)
			axis.Update()

			So(axis.GetPosition(), ShouldEqual, 0)
			So(axis.IsAtMinLimit(), ShouldBeTrue)
		})
	})
}
