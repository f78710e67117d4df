// Command gen_fixtures runs each of the interpreter's end-to-end example
// programs concurrently and writes its captured stdout as a golden fixture
// under testdata/ (or the directory given by -out).
//
// Concurrency structure is grounded on the teacher's scripts/gen_vm_expects.go:
// an errgroup.WithContext bounds every program run under one shared timeout,
// so one wedged interpreter (an infinite loop in a hand-written fixture
// program, say) fails the whole generation run instead of hanging it.
package main

import (
	"bytes"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/net/context"
	"golang.org/x/sync/errgroup"

	"github.com/embedc/minic"
	"github.com/embedc/minic/internal/srctext"
)

var fixtures = map[string]string{
	"factorial": `
int fact(int n) {
	if (n <= 1) {
		return 1;
	}
	return n * fact(n - 1);
}
int main() {
	printf("%d\n", fact(5));
	return 0;
}
`,
	"array_sum": `
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
	printf("%d\n", sum);
	return 0;
}
`,
	"pointer_write": `
int main() {
	int x;
	int *p;
	x = 0;
	p = &x;
	*p = 42;
	printf("%d\n", x);
	return 0;
}
`,
	"macro_square": `
#define SQ(x) ((x)*(x))
int main() {
	printf("%d\n", SQ(3 + 4));
	return 0;
}
`,
	"break_in_while": `
int main() {
	int i;
	i = 0;
	while (1) {
		if (i == 3) {
			break;
		}
		printf("%d\n", i);
		i = i + 1;
	}
	return 0;
}
`,
	"precedence": `
int main() {
	printf("%d\n", 2 + 3 * 4);
	return 0;
}
`,
}

func main() {
	outDir := flag.String("out", "testdata", "directory to write fixture files into")
	timeout := flag.Duration("timeout", 5*time.Second, "overall deadline for generating every fixture")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *outDir); err != nil {
		log.Fatalln(err)
	}
}

func run(ctx context.Context, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	for name, src := range fixtures {
		name, src := name, src
		eg.Go(func() error {
			return genOne(ctx, outDir, name, src)
		})
	}
	return eg.Wait()
}

func genOne(ctx context.Context, outDir, name, src string) error {
	var out bytes.Buffer
	printf := func(ip *minic.Interp, id int, args []*minic.Cell, result *minic.Cell) error {
		vals := make([]interface{}, len(args)-1)
		for i, a := range args[1:] {
			vals[i] = a.I
		}
		return srctext.Fprintf(ip.Output(), args[0].S.String(), vals...)
	}
	ip := minic.New(
		minic.WithOutput(&out),
		minic.WithIntrinsic("printf", minic.TypeInt, []minic.BaseType{minic.TypeString}, 0, printf),
	)
	if err := ip.Run(ctx, map[string]string{name + ".c": src}); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, name+".expected"), out.Bytes(), 0o644)
}
