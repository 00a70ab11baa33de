package style

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/logger"
)

// LuaResolver runs a user script to style airspaces. The script defines a
// global function style(a) that returns a table {fill=, border=, width=} or
// nil to fall back to the table resolver. Calls are serialised because an
// LState is not safe for concurrent use.
type LuaResolver struct {
	L        *lua.LState
	fallback Resolver
	styleFn  lua.LValue
	mu       sync.Mutex
	log      *zap.Logger
}

// NewLuaResolver creates a Lua state with the airspace helpers registered
func NewLuaResolver(fallback Resolver) (*LuaResolver, error) {
	if fallback == nil {
		return nil, fmt.Errorf("lua resolver needs a fallback resolver")
	}

	r := &LuaResolver{
		L:        lua.NewState(),
		fallback: fallback,
		log:      logger.Named("style.lua"),
	}
	r.registerAPI()
	return r, nil
}

// Close releases Lua resources
func (r *LuaResolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.L.Close()
}

// registerAPI exposes an "airspace" module with helpers for scripts
func (r *LuaResolver) registerAPI() {
	mod := r.L.NewTable()
	r.L.SetField(mod, "class_color", r.L.NewFunction(func(L *lua.LState) int {
		c, err := airspace.ParseICAOClass(L.CheckString(1))
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		L.Push(lua.LString(Color(c.Color()).String()))
		return 1
	}))
	r.L.SetField(mod, "with_alpha", r.L.NewFunction(func(L *lua.LState) int {
		c, err := ParseColor(L.CheckString(1))
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		alpha := L.CheckInt(2)
		if alpha < 0 || alpha > 255 {
			L.ArgError(2, "alpha must be between 0 and 255")
			return 0
		}
		L.Push(lua.LString(c.WithAlpha(uint8(alpha)).String()))
		return 1
	}))
	r.L.SetGlobal("airspace", mod)
}

// LoadFile executes a Lua style file
func (r *LuaResolver) LoadFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load Lua file: %w", err)
	}
	return r.extractCallback()
}

// LoadString executes Lua code from a string
func (r *LuaResolver) LoadString(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.L.DoString(code); err != nil {
		return fmt.Errorf("failed to load Lua code: %w", err)
	}
	return r.extractCallback()
}

func (r *LuaResolver) extractCallback() error {
	fn := r.L.GetGlobal("style")
	if fn.Type() != lua.LTFunction {
		return fmt.Errorf("lua script does not define a style(airspace) function")
	}
	r.styleFn = fn
	return nil
}

// Resolve implements Resolver. Script errors are logged and fall back.
func (r *LuaResolver) Resolve(a *airspace.Airspace) Style {
	base := r.fallback.Resolve(a)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.styleFn == nil {
		return base
	}

	if err := r.L.CallByParam(lua.P{
		Fn:      r.styleFn,
		NRet:    1,
		Protect: true,
	}, r.toLua(a, base)); err != nil {
		r.log.Warn("Lua style callback failed", zap.String("airspace", a.ID), zap.Error(err))
		return base
	}

	ret := r.L.Get(-1)
	r.L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return base
	}
	s, err := fromLua(tbl, base)
	if err != nil {
		r.log.Warn("Invalid style returned by Lua", zap.String("airspace", a.ID), zap.Error(err))
		return base
	}
	return s
}

// toLua converts an airspace to the table passed to style()
func (r *LuaResolver) toLua(a *airspace.Airspace, base Style) *lua.LTable {
	t := r.L.NewTable()
	t.RawSetString("id", lua.LString(a.ID))
	t.RawSetString("name", lua.LString(a.Name))
	t.RawSetString("type", lua.LString(a.Type.Abbrev()))
	t.RawSetString("type_code", lua.LNumber(a.Type))
	t.RawSetString("class", lua.LString(a.Class.String()))
	t.RawSetString("country", lua.LString(a.Country))
	t.RawSetString("lower_ft", lua.LNumber(a.Lower.Feet()))
	t.RawSetString("upper_ft", lua.LNumber(a.Upper.Feet()))
	t.RawSetString("lower", lua.LString(a.Lower.String()))
	t.RawSetString("upper", lua.LString(a.Upper.String()))

	def := r.L.NewTable()
	def.RawSetString("fill", lua.LString(base.FillColor.String()))
	def.RawSetString("border", lua.LString(base.BorderColor.String()))
	def.RawSetString("width", lua.LNumber(base.BorderWidth))
	t.RawSetString("default", def)
	return t
}

// fromLua reads {fill=, border=, width=}; missing fields keep the base value
func fromLua(tbl *lua.LTable, base Style) (Style, error) {
	s := base
	if v := tbl.RawGetString("fill"); v.Type() == lua.LTString {
		c, err := ParseColor(string(v.(lua.LString)))
		if err != nil {
			return base, err
		}
		s.FillColor = c
	}
	if v := tbl.RawGetString("border"); v.Type() == lua.LTString {
		c, err := ParseColor(string(v.(lua.LString)))
		if err != nil {
			return base, err
		}
		s.BorderColor = c
	}
	if v := tbl.RawGetString("width"); v.Type() == lua.LTNumber {
		w := float64(v.(lua.LNumber))
		if w < 0 {
			return base, fmt.Errorf("negative border width %v", w)
		}
		s.BorderWidth = w
	}
	return s, nil
}
