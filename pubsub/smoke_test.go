package pubsub_test

// This file is just a smoke test to instantiate the FileDriver and
// pubsub.New(), and ensure that all interfaces are met.

import (
	"fmt"

	"github.com/lf-edge/coremgr/pubsub"
	"github.com/lf-edge/coremgr/pubsub/filedriver"
)

func foo() {
	driver := filedriver.FileDriver{}
	ps := pubsub.New(&driver, nil, nil)
	fmt.Println(ps)
}
