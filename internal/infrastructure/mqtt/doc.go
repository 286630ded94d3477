// Package mqtt provides the MQTT client used to mirror devserver status
// messages onto a broker and to accept tasks from it.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with payload and QoS validation
//   - Subscriptions restored after a reconnect
//   - A retained presence topic with Last Will and Testament
//
// # Topics
//
//	{prefix}/{worker}/status/{HEADER}   every status message
//	{prefix}/{worker}/state             latest STATUS, retained
//	{prefix}/{worker}/command           inbound task lines
//	{prefix}/{worker}/presence          online/offline, retained (LWT)
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.Worker.Name)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.Command(), client.QoS(),
//	    func(topic string, payload []byte) error {
//	        return w.Submit(string(payload))
//	    })
//
// Tests that talk to a real broker carry the integration build tag.
package mqtt
