package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/flaggy/internal/adapters/repository"
	"github.com/okian/flaggy/internal/domain/model"
)

const (
	today    = "2024-03-05"
	thisWeek = "2024-W10"
)

func entry(id, uid string, score int, avg float64, country, day, week string) model.Entry {
	return model.Entry{
		ID: id, UID: uid, DisplayName: uid, Score: score, AverageTime: avg, Accuracy: 90,
		Difficulty: "beginner", Country: country, Timestamp: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		DayID: day, WeekID: week,
	}
}

var sqliteSeq atomic.Int64

type backend struct {
	name string
	open func(t *testing.T) repository.Store
}

func backends() []backend {
	return []backend{
		{"treap", func(t *testing.T) repository.Store {
			s := repository.NewTreapStore(context.Background(), repository.WithSeed(1))
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{"redis", func(t *testing.T) repository.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return repository.NewRedisStore(client, "test:lb")
		}},
		{"sql", func(t *testing.T) repository.Store {
			db, err := repository.OpenSQLite(fmt.Sprintf("file:scores%d?mode=memory&cache=shared", sqliteSeq.Add(1)))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			s, err := repository.NewSQLStore(context.Background(), db)
			if err != nil {
				t.Fatalf("new sql store: %v", err)
			}
			return s
		}},
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			Convey("Given a "+b.name+" store with a week of scores", t, func() {
				s := b.open(t)
				seed := []model.Entry{
					entry("e1", "ada", 10, 3.0, "NG", today, thisWeek),
					entry("e2", "ada", 15, 4.0, "NG", today, thisWeek),
					entry("e3", "bob", 15, 2.5, "US", today, thisWeek),
					entry("e4", "cyd", 12, 1.0, "NG", "2024-03-04", thisWeek),
					entry("e5", "dan", 20, 5.0, "GB", "2024-02-01", "2024-W5"),
				}
				for _, e := range seed {
					So(s.Insert(ctx, e), ShouldBeNil)
				}
				hard := entry("e6", "eve", 99, 1.0, "NG", today, thisWeek)
				hard.Difficulty = "hard"
				So(s.Insert(ctx, hard), ShouldBeNil)

				Convey("Then the count covers every entry", func() {
					So(s.Count(ctx), ShouldEqual, 6)
				})

				Convey("When inserting an existing id", func() {
					err := s.Insert(ctx, entry("e1", "zed", 1, 1, "NG", today, thisWeek))

					Convey("Then it is rejected", func() {
						So(errors.Is(err, repository.ErrDuplicate), ShouldBeTrue)
						So(s.Count(ctx), ShouldEqual, 6)
					})
				})

				Convey("When querying all-time", func() {
					got, err := s.Query(ctx, repository.Query{Difficulty: "beginner", TimeFrame: repository.AllTime})
					So(err, ShouldBeNil)

					Convey("Then entries are ordered by score then time then id", func() {
						So(ids(got), ShouldResemble, []string{"e5", "e3", "e2", "e4", "e1"})
					})
				})

				Convey("When querying today's view", func() {
					got, err := s.Query(ctx, repository.Query{Difficulty: "beginner", TimeFrame: repository.Daily, DayID: today})
					So(err, ShouldBeNil)

					Convey("Then only today's entries are returned", func() {
						So(ids(got), ShouldResemble, []string{"e3", "e2", "e1"})
					})
				})

				Convey("When querying this week for one country", func() {
					got, err := s.Query(ctx, repository.Query{Difficulty: "beginner", TimeFrame: repository.Weekly, WeekID: thisWeek, Country: "ng"})
					So(err, ShouldBeNil)

					Convey("Then the country scope applies", func() {
						So(ids(got), ShouldResemble, []string{"e2", "e4", "e1"})
					})
				})

				Convey("When asking for distinct players", func() {
					got, err := s.Query(ctx, repository.Query{Difficulty: "beginner", Distinct: true, Limit: 3})
					So(err, ShouldBeNil)

					Convey("Then each player appears once with their best", func() {
						So(ids(got), ShouldResemble, []string{"e5", "e3", "e2"})
					})
				})

				Convey("When limiting the view", func() {
					got, err := s.Query(ctx, repository.Query{Difficulty: "beginner", Limit: 2})
					So(err, ShouldBeNil)
					So(got, ShouldHaveLength, 2)
				})

				Convey("When the limit is invalid", func() {
					_, err := s.Query(ctx, repository.Query{Difficulty: "beginner", Limit: -1})
					So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
				})

				Convey("Then entries round-trip intact", func() {
					got, err := s.Query(ctx, repository.Query{Difficulty: "hard"})
					So(err, ShouldBeNil)
					So(got, ShouldHaveLength, 1)
					So(got[0].UID, ShouldEqual, "eve")
					So(got[0].Country, ShouldEqual, "NG")
					So(got[0].DayID, ShouldEqual, today)
					So(got[0].Timestamp.Equal(hard.Timestamp), ShouldBeTrue)
				})
			})
		})
	}
}

func TestQueryNormalize(t *testing.T) {
	Convey("Given raw query input", t, func() {
		Convey("Then defaults are applied", func() {
			q, err := repository.Query{Difficulty: " Medium "}.Normalize()
			So(err, ShouldBeNil)
			So(q.Limit, ShouldEqual, repository.DefaultLimit)
			So(q.TimeFrame, ShouldEqual, repository.AllTime)
			So(q.Bucket(), ShouldEqual, "medium:all")
		})

		Convey("Then period views require their id", func() {
			_, err := repository.Query{Difficulty: "medium", TimeFrame: repository.Daily}.Normalize()
			So(errors.Is(err, repository.ErrInvalidTimeFrame), ShouldBeTrue)
		})

		Convey("Then time frames parse leniently", func() {
			tf, err := repository.ParseTimeFrame("WEEKLY")
			So(err, ShouldBeNil)
			So(tf, ShouldEqual, repository.Weekly)
			tf, _ = repository.ParseTimeFrame("")
			So(tf, ShouldEqual, repository.AllTime)
			_, err = repository.ParseTimeFrame("monthly")
			So(err, ShouldNotBeNil)
		})

		Convey("Then an entry is filed under six buckets", func() {
			b := repository.Buckets(entry("x", "u", 1, 1, "NG", today, thisWeek))
			So(b, ShouldHaveLength, 6)
			So(b, ShouldContain, "beginner:day:2024-03-05:c:NG")
			So(b, ShouldContain, "beginner:week:2024-W10")
		})

		Convey("Then Matches mirrors the bucket filters", func() {
			q := repository.Query{Difficulty: "beginner", TimeFrame: repository.Daily, DayID: today, Country: "NG"}
			So(q.Matches(entry("x", "u", 1, 1, "NG", today, thisWeek)), ShouldBeTrue)
			So(q.Matches(entry("x", "u", 1, 1, "US", today, thisWeek)), ShouldBeFalse)
			So(q.Matches(entry("x", "u", 1, 1, "NG", "2024-01-01", thisWeek)), ShouldBeFalse)
		})
	})
}

func ids(entries []model.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
