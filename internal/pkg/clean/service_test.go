package clean

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/airenas/council/internal/pkg/persistence"
	"github.com/airenas/council/internal/pkg/test"
	"github.com/airenas/council/internal/pkg/test/mocks"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var (
	dbMock      *mocks.DB
	cleanerMock *mockCleaner
	tData       *Data
	tEcho       *echo.Echo
)

func initTest(t *testing.T) {
	t.Helper()
	dbMock = &mocks.DB{}
	cleanerMock = newCleanMock(false)
	tData = &Data{Cleaner: cleanerMock, DB: dbMock}
	tEcho = initRoutes(tData)
	dbMock.On("LoadJob", mock.Anything, "1").Return(&persistence.Job{ID: "1", Status: "SUCCESS"}, nil)
	dbMock.On("LoadJob", mock.Anything, "2").Return(&persistence.Job{ID: "2", Status: "PROCESSING"}, nil)
	dbMock.On("LoadJob", mock.Anything, mock.Anything).Return(nil, nil)
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/invalid", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/delete/1", nil)
	test.Code(t, tEcho, req, http.StatusMethodNotAllowed)
}

func Test_Clean(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodDelete, "/delete/1", nil)
	test.Code(t, tEcho, req, http.StatusOK)
	assert.Equal(t, "1", cleanerMock.Calls[0].Arguments.String(1))
}

func Test_Clean_Missing(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodDelete, "/delete/3", nil)
	test.Code(t, tEcho, req, http.StatusOK)
	assert.Len(t, cleanerMock.Calls, 1)
}

func Test_Clean_InProgress(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodDelete, "/delete/2", nil)
	test.Code(t, tEcho, req, http.StatusConflict)
	assert.Empty(t, cleanerMock.Calls)
}

func Test_Clean_Fails(t *testing.T) {
	initTest(t)
	tData.Cleaner = newCleanMock(true)
	tEcho = initRoutes(tData)
	req := httptest.NewRequest(http.MethodDelete, "/delete/1", nil)
	test.Code(t, tEcho, req, http.StatusInternalServerError)
}

func Test_Clean_FailsDB(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadJob", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia"))
	req := httptest.NewRequest(http.MethodDelete, "/delete/1", nil)
	test.Code(t, tEcho, req, http.StatusInternalServerError)
	assert.Empty(t, cleanerMock.Calls)
}

func Test_Live(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	test.Code(t, tEcho, req, http.StatusOK)
}

func Test_validate(t *testing.T) {
	tests := []struct {
		name    string
		data    *Data
		wantErr bool
	}{
		{name: "OK", data: &Data{Cleaner: newCleanMock(false), DB: &mocks.DB{}}, wantErr: false},
		{name: "Fail Cleaner", data: &Data{DB: &mocks.DB{}}, wantErr: true},
		{name: "Fail DB", data: &Data{Cleaner: newCleanMock(false)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.data); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type mockCleaner struct{ mock.Mock }

func (m *mockCleaner) Clean(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func newCleanMock(fail bool) *mockCleaner {
	res := &mockCleaner{}
	var err error
	if fail {
		err = errors.New("olia")
	}
	res.On("Clean", mock.Anything, mock.Anything).Return(err)
	return res
}
