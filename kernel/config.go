package kernel

// Config is the static configuration of a whole system. It is read-only once
// NewSystem has accepted it.
type Config struct {
	Cores          int                   `json:"cores"`
	AppModes       int                   `json:"appModes"`
	Applications   []ApplicationConfig   `json:"applications"`
	Tasks          []TaskConfig          `json:"tasks"`
	ISRs           []ISRConfig           `json:"isrs"`
	Resources      []ResourceConfig      `json:"resources"`
	Counters       []CounterConfig       `json:"counters"`
	Alarms         []AlarmConfig         `json:"alarms"`
	ScheduleTables []ScheduleTableConfig `json:"scheduleTables"`
	Spinlocks      []SpinlockConfig      `json:"spinlocks"`
	CPULoad        CPULoadConfig         `json:"cpuLoad"`
}

// ApplicationConfig describes an OS application.
type ApplicationConfig struct {
	Name    string `json:"name"`
	Core    CoreID `json:"core"`
	Trusted bool   `json:"trusted"`
	// RestartTask is activated by TerminateApplication(app, true) when
	// Restartable is set.
	Restartable bool   `json:"restartable"`
	RestartTask TaskID `json:"restartTask"`

	StartupHook  func(*Kernel)         `json:"-"`
	ShutdownHook func(*Kernel, Status) `json:"-"`
	ErrorHook    func(*Kernel, Status) `json:"-"`
}

// Budget holds timing limits in Timer units. Zero means unlimited.
type Budget struct {
	Exec    uint64 `json:"exec"`
	OSLock  uint64 `json:"osLock"`
	AllLock uint64 `json:"allLock"`
}

// MaxRateCount bounds RateLimit.Count.
const MaxRateCount = 16

// RateLimit allows at most Count activations within any Window of Timer units.
// A zero Count disables rate limiting.
type RateLimit struct {
	Count  int    `json:"count"`
	Window uint64 `json:"window"`
}

// TaskBody is the code of a task. Step is called by the core loop every time
// the task holds the CPU; it must return promptly.
type TaskBody interface {
	Step(*Context)
}

// TaskFunc adapts a function to TaskBody.
type TaskFunc func(*Context)

func (f TaskFunc) Step(c *Context) { f(c) }

// ISRBody is the code of a category-2 interrupt handler.
type ISRBody interface {
	Handle(*Context)
}

// ISRFunc adapts a function to ISRBody.
type ISRFunc func(*Context)

func (f ISRFunc) Handle(c *Context) { f(c) }

// TaskConfig describes a task.
type TaskConfig struct {
	Name string        `json:"name"`
	App  ApplicationID `json:"app"`
	Core CoreID        `json:"core"`
	// Priority is the queue (base) priority.
	Priority Priority `json:"priority"`
	// RunPriority is the priority while running; non-preemptive tasks set it
	// to the highest task priority. Zero means Priority.
	RunPriority    Priority     `json:"runPriority"`
	MaxActivations uint8        `json:"maxActivations"`
	Extended       bool         `json:"extended"`
	Permissions    AppMask      `json:"permissions"`
	Resources      []ResourceID `json:"resources"`
	Budget         Budget       `json:"budget"`
	Rate           RateLimit    `json:"rate"`
	Autostart      []AppModeID  `json:"autostart"`
	BodyName       string       `json:"body"`
	Body           TaskBody     `json:"-"`
}

// ISRConfig describes a category-2 interrupt service routine.
type ISRConfig struct {
	Name        string        `json:"name"`
	App         ApplicationID `json:"app"`
	Core        CoreID        `json:"core"`
	Level       uint8         `json:"level"`
	Resources   []ResourceID  `json:"resources"`
	Budget      Budget        `json:"budget"`
	Rate        RateLimit     `json:"rate"`
	HandlerName string        `json:"handler"`
	Handler     ISRBody       `json:"-"`
}

// ResourceConfig describes a resource. A zero Ceiling is computed from the
// tasks and ISRs that list the resource.
type ResourceConfig struct {
	Name        string        `json:"name"`
	App         ApplicationID `json:"app"`
	Ceiling     Priority      `json:"ceiling"`
	Permissions AppMask       `json:"permissions"`
}

// CounterConfig describes a counter.
type CounterConfig struct {
	Name            string        `json:"name"`
	App             ApplicationID `json:"app"`
	Core            CoreID        `json:"core"`
	MaxAllowedValue Tick          `json:"maxAllowedValue"`
	MinCycle        Tick          `json:"minCycle"`
	TicksPerBase    Tick          `json:"ticksPerBase"`
	Hardware        bool          `json:"hardware"`
	Permissions     AppMask       `json:"permissions"`
}

// ActionKind selects what an expiring alarm or expiry point does.
type ActionKind uint8

const (
	ActionActivateTask ActionKind = iota + 1
	ActionSetEvent
	ActionIncrementCounter
	ActionCallback
	actionScheduleTable
)

func (a ActionKind) String() string {
	switch a {
	case ActionActivateTask:
		return "activate"
	case ActionSetEvent:
		return "setevent"
	case ActionIncrementCounter:
		return "increment"
	case ActionCallback:
		return "callback"
	case actionScheduleTable:
		return "scheduletable"
	default:
		return "none"
	}
}

// Action is one alarm or expiry-point action.
type Action struct {
	Kind     ActionKind    `json:"kind"`
	Task     TaskID        `json:"task"`
	Event    EventMask     `json:"event"`
	Counter  CounterID     `json:"counter"`
	Callback func(*Kernel) `json:"-"`
}

// AlarmAutostart arms an alarm when StartOS runs in Mode.
type AlarmAutostart struct {
	Mode   AppModeID   `json:"mode"`
	Method StartMethod `json:"method"`
	Start  Tick        `json:"start"`
	Cycle  Tick        `json:"cycle"`
}

// AlarmConfig describes an alarm.
type AlarmConfig struct {
	Name        string           `json:"name"`
	App         ApplicationID    `json:"app"`
	Counter     CounterID        `json:"counter"`
	Action      Action           `json:"action"`
	Permissions AppMask          `json:"permissions"`
	Autostart   []AlarmAutostart `json:"autostart"`
}

// ExpiryPoint is one point of a schedule table round.
type ExpiryPoint struct {
	Offset      Tick     `json:"offset"`
	MaxIncrease Tick     `json:"maxIncrease"`
	MaxDecrease Tick     `json:"maxDecrease"`
	Actions     []Action `json:"actions"`
}

// TableAutostart starts a schedule table when StartOS runs in Mode.
type TableAutostart struct {
	Mode   AppModeID   `json:"mode"`
	Method StartMethod `json:"method"`
	Offset Tick        `json:"offset"`
}

// ScheduleTableConfig describes a schedule table.
type ScheduleTableConfig struct {
	Name      string        `json:"name"`
	App       ApplicationID `json:"app"`
	Counter   CounterID     `json:"counter"`
	Period    Tick          `json:"period"`
	Repeating bool          `json:"repeating"`
	Sync      SyncStrategy  `json:"sync"`
	// Precision is the deviation within which the table counts as synchronous.
	Precision   Tick             `json:"precision"`
	Points      []ExpiryPoint    `json:"points"`
	Permissions AppMask          `json:"permissions"`
	Autostart   []TableAutostart `json:"autostart"`
}

// SpinlockConfig describes a spinlock. Spinlocks with a non-zero Order must
// be taken in strictly increasing order.
type SpinlockConfig struct {
	Name        string  `json:"name"`
	Order       uint16  `json:"order"`
	Permissions AppMask `json:"permissions"`
}

// MaxLoadWindows bounds CPULoadConfig.Windows.
const MaxLoadWindows = 32

// CPULoadConfig enables CPU load measurement over Windows intervals of
// Interval Timer units each. A zero Interval disables it.
type CPULoadConfig struct {
	Interval uint64 `json:"interval"`
	Windows  int    `json:"windows"`
}
