package calllog_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broady/calllog"
	"github.com/broady/calllog/testutil"
)

type greeting struct {
	Text string `json:"text"`
}

func TestWrap0(t *testing.T) {
	rec := testutil.NewRecorder()
	l := calllog.New(rec.Logger())

	ping := calllog.Wrap0(l, calllog.Descriptor{Service: "Status", Method: "Ping"},
		func(ctx context.Context) (*greeting, error) {
			return nil, nil
		})

	res, err := ping(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)

	records := rec.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "[]", records[0].String("args"))
	assert.Equal(t, calllog.AbsentMarker, records[1].String("response"))
}

func TestWrap1_ReturnsSamePointer(t *testing.T) {
	rec := testutil.NewRecorder()
	l := calllog.New(rec.Logger())

	want := &greeting{Text: "hello, ada"}
	greet := calllog.Wrap1(l, calllog.Descriptor{Service: "Greeter", Method: "Greet"},
		func(ctx context.Context, name string) (*greeting, error) {
			return want, nil
		})

	got, err := greet(context.Background(), "ada")
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, `["ada"]`, rec.Records()[0].String("args"))
	assert.Equal(t, `{"text":"hello, ada"}`, rec.Records()[1].String("response"))
}

func TestWrap2_Scenarios(t *testing.T) {
	rec := testutil.NewRecorder()
	l := calllog.New(rec.Logger())

	add := calllog.Wrap2(l, addDesc, func(ctx context.Context, a, b int) (int, error) {
		return a + b, nil
	})
	div := calllog.Wrap2(l, divideDesc, func(ctx context.Context, a, b int) (int, error) {
		if b == 0 {
			return 0, errDivideByZero
		}
		return a / b, nil
	})

	sum, err := add(context.Background(), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, sum)

	q, err := div(context.Background(), 1, 0)
	assert.Equal(t, 0, q)
	assert.True(t, errors.Is(err, errDivideByZero))
	assert.Same(t, errDivideByZero, err)

	assert.Equal(t, []string{
		calllog.MsgEntry, calllog.MsgSuccess,
		calllog.MsgEntry, calllog.MsgFailure,
	}, rec.Messages())
}

func TestWrap3(t *testing.T) {
	rec := testutil.NewRecorder()
	l := calllog.New(rec.Logger())

	join := calllog.Wrap3(l, calllog.Descriptor{Method: "join"},
		func(ctx context.Context, a, b, sep string) (string, error) {
			return strings.Join([]string{a, b}, sep), nil
		})

	got, err := join(context.Background(), "a", "b", "-")
	require.NoError(t, err)
	assert.Equal(t, "a-b", got)

	entry := rec.Records()[0]
	assert.Equal(t, "join", entry.String("method"))
	assert.Equal(t, `["a", "b", "-"]`, entry.String("args"))
}

func TestWrap_PanicPassesThrough(t *testing.T) {
	l := calllog.New(testutil.NewRecorder().Logger())

	explode := calllog.Wrap1(l, calllog.Descriptor{Method: "explode"},
		func(ctx context.Context, n int) (int, error) {
			panic(n)
		})

	assert.PanicsWithValue(t, 7, func() {
		explode(context.Background(), 7)
	})
}

func TestDescriptor_String(t *testing.T) {
	assert.Equal(t, "Math.Add", addDesc.String())
	assert.Equal(t, "Add", calllog.Descriptor{Method: "Add"}.String())
}

func namedHandler(ctx context.Context) (int, error) { return 0, nil }

func TestFuncDescriptor(t *testing.T) {
	d := calllog.FuncDescriptor(namedHandler)
	assert.Equal(t, "github.com/broady/calllog_test", d.Service)
	assert.Equal(t, "namedHandler", d.Method)

	assert.Equal(t, "<unknown>", calllog.FuncDescriptor(42).Method)

	var nilFn func()
	assert.Equal(t, "<unknown>", calllog.FuncDescriptor(nilFn).Method)
}
