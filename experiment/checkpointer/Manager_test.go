package checkpointer

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// model is a Serializable which writes its value to disk
type model struct {
	value  float64
	loaded string
}

func (m *model) Save(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprint(m.value)), 0o644)
}

func (m *model) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.loaded = string(data)
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestManager(t *testing.T) {
	Convey("Given a Manager keeping 2 checkpoints", t, func() {
		dir := t.TempDir()
		obj := &model{}
		m, err := NewManager(dir, obj, WithMaxToKeep(2))
		So(err, ShouldBeNil)

		Convey("Loading without checkpoints fails", func() {
			_, err := m.LoadBest()
			So(err, ShouldNotBeNil)
			_, ok := m.Latest()
			So(ok, ShouldBeFalse)
		})

		Convey("When checkpointing three updates", func() {
			for update, metric := range []float64{5, 1, 3} {
				obj.value = metric
				So(m.Checkpoint(update+1, metric), ShouldBeNil)
			}

			Convey("The worst checkpoint is removed", func() {
				entries := m.Entries()
				So(len(entries), ShouldEqual, 2)
				So(entries[0].Update, ShouldEqual, 1)
				So(entries[1].Update, ShouldEqual, 3)
				So(exists(filepath.Join(dir, "ppo_update_2")), ShouldBeFalse)
				So(exists(filepath.Join(dir, "ppo_update_3")), ShouldBeTrue)
			})

			Convey("Best and latest checkpoints can be loaded", func() {
				best, err := m.LoadBest()
				So(err, ShouldBeNil)
				So(best.Update, ShouldEqual, 1)
				So(obj.loaded, ShouldEqual, "5")

				latest, err := m.LoadLatest()
				So(err, ShouldBeNil)
				So(latest.Update, ShouldEqual, 3)
				So(obj.loaded, ShouldEqual, "3")
			})

			Convey("A new Manager reads the registry", func() {
				again, err := NewManager(dir, obj, WithMaxToKeep(2))
				So(err, ShouldBeNil)
				entries := again.Entries()
				So(len(entries), ShouldEqual, 2)
				for i, e := range m.Entries() {
					So(entries[i].Update, ShouldEqual, e.Update)
					So(entries[i].Metric, ShouldEqual, e.Metric)
					So(entries[i].Path, ShouldEqual, e.Path)
				}
			})

			Convey("Checkpoints can be deleted", func() {
				So(m.Delete(3), ShouldBeNil)
				So(len(m.Entries()), ShouldEqual, 1)
				So(exists(filepath.Join(dir, "ppo_update_3")), ShouldBeFalse)
				So(m.Delete(3), ShouldNotBeNil)

				So(m.DeleteAll(), ShouldBeNil)
				So(m.Entries(), ShouldBeEmpty)
				So(exists(filepath.Join(dir, RegistryFile)), ShouldBeTrue)
			})
		})

		Convey("NaN metrics rank last", func() {
			So(m.Checkpoint(1, math.NaN()), ShouldBeNil)
			So(m.Checkpoint(2, -10), ShouldBeNil)
			best, ok := m.Best()
			So(ok, ShouldBeTrue)
			So(best.Update, ShouldEqual, 2)
		})
	})

	Convey("A Manager ranking lower metrics higher keeps the lowest", t,
		func() {
			m, err := NewManager(t.TempDir(), &model{}, WithMaxToKeep(1),
				WithLowerIsBetter())
			So(err, ShouldBeNil)
			So(m.Checkpoint(1, 0.5), ShouldBeNil)
			So(m.Checkpoint(2, 0.9), ShouldBeNil)
			best, _ := m.Best()
			So(best.Update, ShouldEqual, 1)
			So(len(m.Entries()), ShouldEqual, 1)
		})
}

func TestNStep(t *testing.T) {
	Convey("An NStep checkpointer saves every n updates", t, func() {
		dir := t.TempDir()
		c, err := NewNStep(2, &model{}, FilenameEnumerator(dir, "model_",
			".bin"))
		So(err, ShouldBeNil)

		for update := 1; update <= 4; update++ {
			So(c.Checkpoint(update, 0), ShouldBeNil)
		}
		So(exists(filepath.Join(dir, "model_1.bin")), ShouldBeFalse)
		So(exists(filepath.Join(dir, "model_2.bin")), ShouldBeTrue)
		So(exists(filepath.Join(dir, "model_4.bin")), ShouldBeTrue)

		_, err = NewNStep(0, &model{}, nil)
		So(err, ShouldNotBeNil)
	})
}
