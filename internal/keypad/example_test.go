package keypad_test

import (
	"fmt"

	"github.com/sweeney/keypad-scanner/internal/gpio"
	"github.com/sweeney/keypad-scanner/internal/keypad"
)

func Example() {
	layout := keypad.DefaultLayout()
	bus := gpio.NewFakeMatrix(layout.RowPins, layout.ColPins)

	kp, err := keypad.New(bus, layout)
	if err != nil {
		fmt.Println(err)
		return
	}

	bus.Press(1, 2)
	kp.Scan()

	if key, ok := kp.Consume(); ok {
		fmt.Printf("pressed %c\n", key)
	}
	_, ok := kp.Consume()
	fmt.Println("again:", ok)
	// Output:
	// pressed 6
	// again: false
}
