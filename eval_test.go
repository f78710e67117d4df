package minic

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func runProgramWithIntrinsics(t *testing.T, src string, opts ...Option) (string, error) {
	t.Helper()
	var out bytes.Buffer
	allOpts := append([]Option{WithOutput(&out)}, opts...)
	ip := New(allOpts...)
	err := ip.Run(context.Background(), map[string]string{"test.c": src})
	return out.String(), err
}

func withPrintf(t *testing.T) Option {
	return WithIntrinsic("printf", TypeInt, []BaseType{TypeString}, 1, func(ip *Interp, id int, args []*Cell, result *Cell) error {
		format := args[0].S.String()
		argi := 1
		for i := 0; i < len(format); i++ {
			if format[i] != '%' || i+1 >= len(format) {
				ip.Output().Write([]byte{format[i]})
				continue
			}
			i++
			switch format[i] {
			case 'd':
				var v int
				if argi < len(args) {
					v = toInt(args[argi])
					argi++
				}
				ip.Output().Write([]byte(itoaForTest(v)))
			case 'n':
			default:
				ip.Output().Write([]byte{format[i]})
			}
		}
		return nil
	})
}

func itoaForTest(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestEndToEndFactorial(t *testing.T) {
	out, err := runProgramWithIntrinsics(t, `
int fact(int n) {
	if (n <= 1) {
		return 1;
	}
	return n * fact(n - 1);
}
int main() {
	printf("%d", fact(5));
	return 0;
}
`, withPrintf(t))
	require.NoError(t, err)
	require.Equal(t, "120", out)
}

func TestEndToEndArraySumViaFor(t *testing.T) {
	out, err := runProgramWithIntrinsics(t, `
int main() {
	int a[5];
	int i;
	int sum;
	for (i = 0; i < 5; i = i + 1) {
		a[i] = i + 1;
	}
	sum = 0;
	for (i = 0; i < 5; i = i + 1) {
		sum = sum + a[i];
	}
	printf("%d", sum);
	return 0;
}
`, withPrintf(t))
	require.NoError(t, err)
	require.Equal(t, "15", out)
}

func TestEndToEndPointerWrite(t *testing.T) {
	out, err := runProgramWithIntrinsics(t, `
int main() {
	int x;
	int *p;
	x = 0;
	p = &x;
	*p = 42;
	printf("%d", x);
	return 0;
}
`, withPrintf(t))
	require.NoError(t, err)
	require.Equal(t, "42", out)
}

func TestEndToEndMacroSquare(t *testing.T) {
	out, err := runProgramWithIntrinsics(t, `
#define SQ(x) ((x)*(x))
int main() {
	printf("%d", SQ(3 + 4));
	return 0;
}
`, withPrintf(t))
	require.NoError(t, err)
	require.Equal(t, "49", out)
}

func TestEndToEndBreakInWhile(t *testing.T) {
	out, err := runProgramWithIntrinsics(t, `
int main() {
	int i;
	i = 0;
	while (1) {
		if (i == 3) {
			break;
		}
		printf("%d", i);
		i = i + 1;
	}
	return 0;
}
`, withPrintf(t))
	require.NoError(t, err)
	require.Equal(t, "012", out)
}

func TestEndToEndPrecedence(t *testing.T) {
	out, err := runProgramWithIntrinsics(t, `
int main() {
	printf("%d", 2 + 3 * 4);
	return 0;
}
`, withPrintf(t))
	require.NoError(t, err)
	require.Equal(t, "14", out)
}

func TestAssignToNonLvalueIsSemanticError(t *testing.T) {
	var out bytes.Buffer
	ip := New(WithOutput(&out))
	err := ip.Run(context.Background(), map[string]string{"test.c": `
int main() {
	int a;
	int b;
	(a + b) = 3;
	return 0;
}
`})
	require.Error(t, err)
	pf, ok := err.(*ProgramFail)
	require.True(t, ok)
	require.Equal(t, Semantic, pf.Kind)
}

func TestDivisionByZeroIsRuntimeError(t *testing.T) {
	var out bytes.Buffer
	ip := New(WithOutput(&out))
	err := ip.Run(context.Background(), map[string]string{"test.c": `
int main() {
	int a;
	int b;
	a = 1;
	b = 0;
	return a / b;
}
`})
	require.Error(t, err)
	pf, ok := err.(*ProgramFail)
	require.True(t, ok)
	require.Equal(t, Runtime, pf.Kind)
}

func TestArrayOutOfBoundsIsRuntimeError(t *testing.T) {
	var out bytes.Buffer
	ip := New(WithOutput(&out))
	err := ip.Run(context.Background(), map[string]string{"test.c": `
int main() {
	int a[3];
	int i;
	i = 5;
	a[i] = 1;
	return 0;
}
`})
	require.Error(t, err)
	pf, ok := err.(*ProgramFail)
	require.True(t, ok)
	require.Equal(t, Runtime, pf.Kind)
}

func TestCallDepthExceededIsRuntimeError(t *testing.T) {
	var out bytes.Buffer
	ip := New(WithOutput(&out), WithMaxCallDepth(3))
	err := ip.Run(context.Background(), map[string]string{"test.c": `
int recurse(int n) {
	return recurse(n + 1);
}
int main() {
	return recurse(0);
}
`})
	require.Error(t, err)
	pf, ok := err.(*ProgramFail)
	require.True(t, ok)
	require.Equal(t, Runtime, pf.Kind)
}

func TestShortCircuitOr(t *testing.T) {
	out, err := runProgramWithIntrinsics(t, `
int sideeffect(int n) {
	printf("%d", n);
	return n;
}
int main() {
	if (1 || sideeffect(9)) {
		printf("%d", 1);
	}
	return 0;
}
`, withPrintf(t))
	require.NoError(t, err)
	require.Equal(t, "1", out)
}

func TestIncludeDirective(t *testing.T) {
	var out bytes.Buffer
	loader := func(name string) (string, string, error) {
		return `int helper() { return 7; }`, name, nil
	}
	ip := New(
		WithOutput(&out),
		WithIncludeLoader(loader),
		WithIntrinsic("printf", TypeInt, []BaseType{TypeString}, 1, func(ip *Interp, id int, args []*Cell, result *Cell) error {
			return nil
		}),
	)
	err := ip.Run(context.Background(), map[string]string{"test.c": `
#include "helper.h"
int main() {
	return helper();
}
`})
	require.NoError(t, err)
}
