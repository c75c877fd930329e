package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type randMock struct {
	mock.Mock
}

func (m *randMock) Intn(n int) int {
	args := m.Called(n)
	return args.Int(0)
}

type ScheduleSuite struct {
	suite.Suite
}

func (s *ScheduleSuite) TestBackoffDelay_Defaults() {
	sch := NewSchedule(ScheduleConfig{}, &randMock{})
	s.Equal(5*time.Second, sch.BackoffDelay(0))
	s.Equal(5*time.Second, sch.BackoffDelay(1))
	s.Equal(15*time.Second, sch.BackoffDelay(2))
	s.Equal(30*time.Second, sch.BackoffDelay(3))
	s.Equal(60*time.Second, sch.BackoffDelay(4))
	s.Equal(60*time.Second, sch.BackoffDelay(100))
}

func (s *ScheduleSuite) TestBackoffDelay_Override() {
	sch := NewSchedule(ScheduleConfig{Backoff1: time.Second, Backoff4: 2 * time.Minute}, &randMock{})
	s.Equal(time.Second, sch.BackoffDelay(1))
	s.Equal(15*time.Second, sch.BackoffDelay(2))
	s.Equal(2*time.Minute, sch.BackoffDelay(9))
}

func (s *ScheduleSuite) TestBackoffDelay_Jitter() {
	m := &randMock{}
	m.On("Intn", 1001).Return(250).Once()

	sch := NewSchedule(ScheduleConfig{MaxJitter: time.Second}, m)
	s.Equal(15*time.Second+250*time.Millisecond, sch.BackoffDelay(2))
	m.AssertExpectations(s.T())
}

func TestScheduleSuite(t *testing.T) {
	suite.Run(t, new(ScheduleSuite))
}
