package vec

import "testing"

func TestFloorDivMod(t *testing.T) {
	cases := []struct {
		a, b, div, mod int
	}{
		{0, 16, 0, 0},
		{15, 16, 0, 15},
		{16, 16, 1, 0},
		{-1, 16, -1, 15},
		{-16, 16, -1, 0},
		{-17, 16, -2, 15},
	}

	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.div {
			t.Errorf("FloorDiv(%d, %d) = %d, ожидалось %d", c.a, c.b, got, c.div)
		}
		if got := FloorMod(c.a, c.b); got != c.mod {
			t.Errorf("FloorMod(%d, %d) = %d, ожидалось %d", c.a, c.b, got, c.mod)
		}
	}
}

func TestVec3Add(t *testing.T) {
	v := Vec3{X: 1, Y: 2, Z: 3}.Add(Directions[3])
	if !v.Equals(Vec3{X: 1, Y: 1, Z: 3}) {
		t.Errorf("неверная сумма: %+v", v)
	}
	if d := (Vec3{}).DistanceTo(Vec3{X: 3, Y: 4}); d != 25 {
		t.Errorf("квадрат расстояния = %v, ожидалось 25", d)
	}
}
