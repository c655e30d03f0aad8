package connascence

import (
	"fmt"
	"strings"
	"testing"

	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
	"github.com/panbanda/connascence/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detect(t *testing.T, kind models.RuleKind, policy config.Policy, path, src string) []models.Violation {
	t.Helper()
	d, err := New(kind, policy)
	require.NoError(t, err)
	tree, lines := testutil.Parse(t, path, src)
	return d.Detect(tree, lines)
}

func detectAll(t *testing.T, path, src string) []models.Violation {
	t.Helper()
	var out []models.Violation
	for _, kind := range Kinds() {
		out = append(out, detect(t, kind, config.DefaultPolicy(), path, src)...)
	}
	return out
}

func byKind(vs []models.Violation, kind models.RuleKind) []models.Violation {
	var out []models.Violation
	for _, v := range vs {
		if v.RuleKind == kind {
			out = append(out, v)
		}
	}
	return out
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(models.RuleParseError, config.DefaultPolicy())
	assert.Error(t, err)

	for _, kind := range Kinds() {
		d, err := New(kind, config.DefaultPolicy())
		require.NoError(t, err)
		assert.Equal(t, string(kind), d.Category().String())
	}
}

func TestPositionAndMeaningScenario(t *testing.T) {
	src := `def configure(a, b, c, d, e, f, g, h):
    if a == 42:
        return b
    return c
`
	vs := detectAll(t, "scenario.py", src)
	require.Len(t, vs, 2)

	pos := byKind(vs, models.RulePosition)
	require.Len(t, pos, 1)
	assert.Equal(t, models.SeverityHigh, pos[0].Severity)
	assert.Equal(t, models.LocalitySameFunction, pos[0].Locality)
	count, _ := pos[0].ContextInt("parameter_count")
	assert.Equal(t, 8, count)

	meaning := byKind(vs, models.RuleMeaning)
	require.Len(t, meaning, 1)
	assert.Equal(t, models.SeverityMedium, meaning[0].Severity)
	assert.Equal(t, models.LocalitySameFunction, meaning[0].Locality)
	assert.Equal(t, 2, meaning[0].Line)
	assert.Equal(t, "42", meaning[0].Context["value"])
}

func TestPositionDetector(t *testing.T) {
	src := `class Service:
    def ok(self, a, b, c, d):
        pass

    def wide(self, a, b, c, d, e):
        pass


def variadic(a, b, *rest, key=None, **opts):
    pass


def caller():
    wide(1, 2, 3, 4, 5)
    wide(1, 2, 3, d=4, e=5)
    variadic(1, 2, *items)
`
	vs := detect(t, models.RulePosition, config.DefaultPolicy(), "svc.py", src)
	require.Len(t, vs, 2)

	assert.Equal(t, 5, vs[0].Line)
	assert.Equal(t, "Service.wide", vs[0].Context["function"])
	assert.Equal(t, models.SeverityHigh, vs[0].Severity)

	assert.Equal(t, 14, vs[1].Line)
	assert.Equal(t, models.SeverityMedium, vs[1].Severity)
	assert.Equal(t, models.LocalitySameModule, vs[1].Locality)
}

func TestPositionDetector_OtherLanguages(t *testing.T) {
	goSrc := "package main\n\nfunc wide(a, b, c, d, e int) int {\n\treturn a\n}\n"
	vs := detect(t, models.RulePosition, config.DefaultPolicy(), "main.go", goSrc)
	require.Len(t, vs, 1)
	assert.Equal(t, 3, vs[0].Line)

	jsSrc := "function wide(a, b, c, d, e) {\n  return a;\n}\n"
	vs = detect(t, models.RulePosition, config.DefaultPolicy(), "app.js", jsSrc)
	require.Len(t, vs, 1)
	assert.Equal(t, 1, vs[0].Line)
}

func TestMeaningDetector(t *testing.T) {
	src := `TIMEOUT = 30
retries = 7
password = "hunter22"
path = "/usr/local/bin"
sep = "----"
ext = ".py"
count = 1


def check(status, n=99):
    if status == 200:
        return True
    if status == 418:
        return False
    connect(timeout=45)
    return n
`
	vs := detect(t, models.RuleMeaning, config.DefaultPolicy(), "m.py", src)
	require.Len(t, vs, 4)

	byLine := make(map[int]models.Violation)
	for _, v := range vs {
		byLine[v.Line] = v
	}
	assert.Equal(t, models.SeverityMedium, byLine[2].Severity)
	assert.Equal(t, models.LocalitySameModule, byLine[2].Locality)
	assert.Equal(t, models.SeverityCritical, byLine[3].Severity)
	assert.Equal(t, models.SeverityLow, byLine[4].Severity)
	assert.Equal(t, models.SeverityMedium, byLine[13].Severity)
	assert.Equal(t, models.LocalitySameFunction, byLine[13].Locality)
	assert.Equal(t, "check", byLine[13].Context["function"])
}

func TestMeaningDetector_AllowlistFromPolicy(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.MagicLiteralAllowlist = append(policy.MagicLiteralAllowlist, "418")
	src := "def f(s):\n    return s == 418\n"
	assert.Empty(t, detect(t, models.RuleMeaning, policy, "a.py", src))
	assert.Len(t, detect(t, models.RuleMeaning, config.DefaultPolicy(), "a.py", src), 1)
}

func TestMeaningDetector_SecurityWordBoundary(t *testing.T) {
	src := `def f(monkey, api_key, authToken, keyboard, cfg):
    if monkey == 42:
        return 1
    if api_key == 43:
        return 2
    if authToken == 44:
        return 3
    if keyboard == 45:
        return 4
    cfg.encryption_level = 46
`
	vs := detect(t, models.RuleMeaning, config.DefaultPolicy(), "s.py", src)
	require.Len(t, vs, 5)

	sev := make(map[int]models.Severity)
	for _, v := range vs {
		sev[v.Line] = v.Severity
	}
	assert.Equal(t, models.SeverityMedium, sev[2], "monkey is not key")
	assert.Equal(t, models.SeverityCritical, sev[4])
	assert.Equal(t, models.SeverityCritical, sev[6])
	assert.Equal(t, models.SeverityMedium, sev[8], "keyboard is not key")
	assert.Equal(t, models.SeverityCritical, sev[10])
}

func TestWordSegments(t *testing.T) {
	assert.Equal(t, []string{"http", "auth", "token"}, wordSegments("HTTPAuthToken"))
	assert.Equal(t, []string{"if", "api", "key", "42"}, wordSegments("if api_key == 42:"))
	assert.Equal(t, []string{"monkey"}, wordSegments("monkey"))
	assert.Empty(t, wordSegments("== ()"))
}

func TestTypeDetector(t *testing.T) {
	src := `def scale(value, label, items):
    total = value * 3
    name = label.upper()
    first = items[0]
    return total, name, first


def typed(value: int):
    return value * 3


def dispatch(x):
    if isinstance(x, (int, str, bytes)):
        return 1
    return 0


def guarded(x):
    if isinstance(x, (int, str, bytes)):
        return 1
    else:
        return 0
`
	vs := detect(t, models.RuleType, config.DefaultPolicy(), "t.py", src)
	require.Len(t, vs, 4)

	usage := make(map[string]string)
	for _, v := range vs {
		if p, ok := v.Context["parameter"].(string); ok {
			usage[p] = v.Context["implied_usage"].(string)
		}
		assert.Equal(t, models.SeverityLow, v.Severity)
	}
	assert.Equal(t, map[string]string{"value": "a number", "label": "a string", "items": "a sequence"}, usage)
	assert.Equal(t, 13, vs[3].Line)
	assert.Equal(t, 3, vs[3].Context["type_count"])
}

func TestNameDetector(t *testing.T) {
	var b strings.Builder
	b.WriteString("registry = {}\nsettings = {}\n")
	for i := range 5 {
		fmt.Fprintf(&b, "\n\ndef use%d():\n    return registry\n", i)
	}
	for i := range 4 {
		fmt.Fprintf(&b, "\n\ndef read%d():\n    return settings\n", i)
	}
	b.WriteString("\n\ndef shadow(registry):\n    return registry\n")

	vs := detect(t, models.RuleName, config.DefaultPolicy(), "n.py", b.String())
	require.Len(t, vs, 1)
	assert.Equal(t, "registry", vs[0].Context["name"])
	assert.Equal(t, 1, vs[0].Line)
	scopes, _ := vs[0].ContextInt("scope_count")
	assert.Equal(t, 5, scopes)
	assert.Equal(t, models.LocalitySameModule, vs[0].Locality)

	policy := config.DefaultPolicy()
	policy.NameFanoutThreshold = 4
	assert.Len(t, detect(t, models.RuleName, policy, "n.py", b.String()), 2)
}

func TestAlgorithmDetector_SimilarSequences(t *testing.T) {
	src := `def first(xs):
    total = 0
    for x in xs:
        total += x
    return total


def second(ys):
    acc = 1
    for y in ys:
        acc *= y
    return acc


def third(zs):
    out = 0
    for z in zs:
        out += z.value
    return out


def copy_of_first(ws):
    n = 0
    for w in ws:
        n += w
    return n
`
	vs := detect(t, models.RuleAlgorithm, config.DefaultPolicy(), "alg.py", src)
	require.Len(t, vs, 2)
	assert.Equal(t, 8, vs[0].Line)
	assert.Equal(t, "first", vs[0].Context["similar_to"])
	assert.Equal(t, 15, vs[1].Line)
	for _, v := range vs {
		assert.Equal(t, models.SeverityMedium, v.Severity)
	}
}

func TestAlgorithmDetector_Complexity(t *testing.T) {
	var b strings.Builder
	b.WriteString("def branchy(x):\n")
	for i := range 10 {
		fmt.Fprintf(&b, "    if x == %d:\n        return %d\n", i, i)
	}
	b.WriteString("    return -1\n")

	vs := detect(t, models.RuleAlgorithm, config.DefaultPolicy(), "cc.py", b.String())
	require.Len(t, vs, 1)
	assert.Equal(t, models.SeverityHigh, vs[0].Severity)
	cc, _ := vs[0].ContextInt("complexity")
	assert.Equal(t, 11, cc)
}

func TestExecutionDetector(t *testing.T) {
	src := `class Connection:
    def connect(self):
        pass

    def close(self):
        pass


def transfer(conn):
    conn.begin()
    conn.send(1)
    conn.commit()


def safe_transfer(conn):
    try:
        conn.begin()
        conn.commit()
    except Exception:
        conn.rollback()


def copy(src):
    data = open(src).read()
    open("dst", "w").write(data)
`
	vs := detect(t, models.RuleExecution, config.DefaultPolicy(), "e.py", src)
	require.Len(t, vs, 3)

	assert.Equal(t, models.LocalitySameClass, vs[0].Locality)
	assert.Equal(t, "connect", vs[0].Context["setup"])
	assert.Equal(t, "close", vs[0].Context["teardown"])

	assert.Equal(t, models.SeverityHigh, vs[1].Severity)
	assert.Equal(t, "transfer", vs[1].Context["function"])

	assert.Equal(t, models.SeverityMedium, vs[2].Severity)
	assert.Equal(t, "copy", vs[2].Context["function"])
}

func TestTimingDetector(t *testing.T) {
	src := `import asyncio
import threading
import time


def poll():
    while True:
        time.sleep(1)


def pause():
    time.sleep(5)


def fire():
    t = threading.Thread(target=work)
    t.start()


def fire_and_wait():
    t = threading.Thread(target=work)
    t.start()
    t.join()


async def fetch(client):
    return await client.get()


async def fetch_bounded(client):
    return await asyncio.wait_for(client.get(), timeout=5)
`
	vs := detect(t, models.RuleTiming, config.DefaultPolicy(), "tm.py", src)
	require.Len(t, vs, 4)

	got := make(map[string]models.Severity)
	for _, v := range vs {
		got[v.Context["function"].(string)] = v.Severity
	}
	assert.Equal(t, map[string]models.Severity{
		"poll":  models.SeverityHigh,
		"pause": models.SeverityMedium,
		"fire":  models.SeverityHigh,
		"fetch": models.SeverityMedium,
	}, got)
}

func TestValueDetector(t *testing.T) {
	src := `cache = {}
LIMITS = []
seen = []


def remember(key, value):
    cache[key] = value


def track(item):
    seen.append(item)


def readonly():
    return len(LIMITS)


counter = 0


def bump():
    global counter
    counter += 1


class Account:
    def __init__(self):
        self.balance = 0

    def deposit(self, amount):
        self.balance += amount

    def withdraw(self, amount):
        self.balance -= amount
`
	vs := detect(t, models.RuleValue, config.DefaultPolicy(), "v.py", src)
	require.Len(t, vs, 4)

	assert.Equal(t, "cache", vs[0].Context["name"])
	assert.Equal(t, "remember", vs[0].Context["writers"])
	assert.Equal(t, "seen", vs[1].Context["name"])

	assert.Equal(t, models.SeverityHigh, vs[2].Severity)
	assert.Equal(t, "counter", vs[2].Context["name"])

	assert.Equal(t, models.LocalitySameClass, vs[3].Locality)
	assert.Equal(t, "balance", vs[3].Context["attribute"])
	assert.Equal(t, "deposit, withdraw", vs[3].Context["writers"])
}

func TestIdentityDetector(t *testing.T) {
	src := `def compare(a, b):
    if a is None:
        return 0
    if a is "text":
        return 1
    if make() is make():
        return 2
    x = [1]
    y = [1]
    if x is y:
        return 3
    if id(a) == id(b):
        return 4
    if a is b:
        return 5
    return 6
`
	vs := detect(t, models.RuleIdentity, config.DefaultPolicy(), "i.py", src)
	require.Len(t, vs, 4)
	lines := []int{vs[0].Line, vs[1].Line, vs[2].Line, vs[3].Line}
	assert.Equal(t, []int{4, 6, 10, 12}, lines)
	assert.Equal(t, models.SeverityHigh, vs[0].Severity)
	assert.Equal(t, models.SeverityMedium, vs[3].Severity)
}

func godClass(methods, attrs int) string {
	var b strings.Builder
	b.WriteString("class Big:\n")
	if attrs > 0 {
		b.WriteString("    def __init__(self):\n")
		for i := range attrs {
			fmt.Fprintf(&b, "        self.a%d = None\n", i)
		}
		methods--
	}
	for i := range methods {
		fmt.Fprintf(&b, "    def m%d(self):\n        pass\n", i)
	}
	return b.String()
}

func TestGodObjectDetector_Threshold(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.GodObjectMethodThreshold = 15

	assert.Empty(t, detect(t, models.RuleGodObject, policy, "g.py", godClass(15, 0)))

	vs := detect(t, models.RuleGodObject, policy, "g.py", godClass(16, 0))
	require.Len(t, vs, 1)
	assert.Equal(t, models.SeverityHigh, vs[0].Severity)
	assert.Equal(t, models.LocalitySameClass, vs[0].Locality)
	n, _ := vs[0].ContextInt("method_count")
	assert.Equal(t, 16, n)

	// a raised threshold is honored exactly as configured
	policy.GodObjectMethodThreshold = 16
	assert.Empty(t, detect(t, models.RuleGodObject, policy, "g.py", godClass(16, 0)))
}

func TestGodObjectDetector_Attributes(t *testing.T) {
	policy := config.DefaultPolicy()
	assert.Empty(t, detect(t, models.RuleGodObject, policy, "g.py", godClass(2, policy.GodObjectAttributeThreshold)))

	vs := detect(t, models.RuleGodObject, policy, "g.py", godClass(2, policy.GodObjectAttributeThreshold+1))
	require.Len(t, vs, 1)
	n, _ := vs[0].ContextInt("attribute_count")
	assert.Equal(t, policy.GodObjectAttributeThreshold+1, n)
}

func goStruct(methods, fields int) string {
	var b strings.Builder
	b.WriteString("package big\n\ntype Big struct {\n")
	for i := range fields {
		fmt.Fprintf(&b, "\tf%d int\n", i)
	}
	b.WriteString("}\n")
	for i := range methods {
		fmt.Fprintf(&b, "\nfunc (b *Big) M%d() {}\n", i)
	}
	return b.String()
}

func TestGodObjectDetector_GoStruct(t *testing.T) {
	policy := config.DefaultPolicy()

	assert.Empty(t, detect(t, models.RuleGodObject, policy, "big.go", goStruct(15, 1)))

	vs := detect(t, models.RuleGodObject, policy, "big.go", goStruct(16, 1))
	require.Len(t, vs, 1)
	assert.Equal(t, "Big", vs[0].Context["class"])
	assert.Equal(t, 3, vs[0].Line)
	n, _ := vs[0].ContextInt("method_count")
	assert.Equal(t, 16, n)

	vs = detect(t, models.RuleGodObject, policy, "big.go", goStruct(1, policy.GodObjectAttributeThreshold+1))
	require.Len(t, vs, 1)
	n, _ = vs[0].ContextInt("attribute_count")
	assert.Equal(t, policy.GodObjectAttributeThreshold+1, n)
}

const goConn = `package conn

type Conn struct {
	state string
}

func (c *Conn) Open() {
	c.state = "open"
}

func (c *Conn) Close() {
	c.state = "closed"
}
`

func TestExecutionDetector_GoLifecycle(t *testing.T) {
	vs := detect(t, models.RuleExecution, config.DefaultPolicy(), "conn.go", goConn)
	require.Len(t, vs, 1)
	assert.Equal(t, "Conn", vs[0].Context["class"])
	assert.Equal(t, "Open", vs[0].Context["setup"])
	assert.Equal(t, "Close", vs[0].Context["teardown"])
}

func TestValueDetector_GoReceiverWrites(t *testing.T) {
	vs := detect(t, models.RuleValue, config.DefaultPolicy(), "conn.go", goConn)
	require.Len(t, vs, 1)
	assert.Equal(t, "state", vs[0].Context["attribute"])
	assert.Equal(t, "Open, Close", vs[0].Context["writers"])
	assert.Equal(t, 8, vs[0].Line)
	assert.Equal(t, models.LocalitySameClass, vs[0].Locality)
}

func TestNameDetector_GoReceiverIsLocal(t *testing.T) {
	var b strings.Builder
	b.WriteString("package srv\n\ntype Server struct{ port int }\n")
	for i := range 6 {
		fmt.Fprintf(&b, "\nfunc (srv *Server) Port%d() int {\n\treturn srv.port\n}\n", i)
	}
	assert.Empty(t, detect(t, models.RuleName, config.DefaultPolicy(), "srv.go", b.String()))
}

func TestDetectors_StatelessAcrossFiles(t *testing.T) {
	a := "def f(a, b, c, d, e, f, g):\n    return a == 77\n"
	b := "class C:\n    def m(self):\n        self.x = 5\n"
	treeA, linesA := testutil.Parse(t, "a.py", a)
	treeB, linesB := testutil.Parse(t, "b.py", b)

	for _, kind := range Kinds() {
		d, err := New(kind, config.DefaultPolicy())
		require.NoError(t, err)
		first := d.Detect(treeA, linesA)
		_ = d.Detect(treeB, linesB)
		again := d.Detect(treeA, linesA)
		assert.Equal(t, first, again, "detector %s", kind)
	}
}
